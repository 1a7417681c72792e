package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show completion per subscribed course",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		progress, src, err := c.CourseProgress(ctx)
		if err != nil {
			return err
		}
		for _, p := range progress {
			fmt.Printf("%-30s %d/%d (%.0f%%)\n", p.Title, p.Completed, p.Total, p.Percent)
		}
		if suffix := sourceSuffix(src); suffix != "" {
			fmt.Println(suffix)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show user statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		stats, src, err := c.Statistics(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Courses subscribed: %d%s\n", stats.CoursesSubscribed, sourceSuffix(src))
		fmt.Printf("Courses completed:  %d\n", stats.CoursesCompleted)
		fmt.Printf("Chapters completed: %d\n", stats.ChaptersCompleted)
		fmt.Printf("Tests passed:       %d\n", stats.TestsPassed)
		fmt.Printf("Average score:      %.1f\n", stats.AverageScore)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(progressCmd, statsCmd)
}
