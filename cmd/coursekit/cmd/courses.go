package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var coursesCategory int64

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		courses, src, err := c.Courses(ctx, coursesCategory)
		if err != nil {
			return err
		}
		for _, course := range courses {
			fmt.Printf("%4d  %-30s %s\n", course.ID, course.Title, course.Status)
		}
		if suffix := sourceSuffix(src); suffix != "" {
			fmt.Println(suffix)
		}
		return nil
	},
}

var courseCmd = &cobra.Command{
	Use:   "course <id>",
	Short: "Show course details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid course id %q", args[0])
		}
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		course, src, err := c.Course(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s%s\n\n%s\n", course.Title, sourceSuffix(src), course.Description)
		return nil
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <course-id>",
	Short: "Subscribe to a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid course id %q", args[0])
		}
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		ack, err := c.SubscribeCourse(ctx, id)
		if err != nil {
			return err
		}
		if ack.Queued {
			fmt.Println("Offline: subscription queued for sync")
		} else {
			fmt.Println("Subscribed")
		}
		return nil
	},
}

var chaptersCmd = &cobra.Command{
	Use:   "chapters <course-id>",
	Short: "List the chapters of a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid course id %q", args[0])
		}
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		chapters, src, err := c.Chapters(ctx, id)
		if err != nil {
			return err
		}
		for _, ch := range chapters {
			mark := " "
			if ch.IsCompleted {
				mark = "x"
			}
			fmt.Printf("[%s] %4d  %s\n", mark, ch.ID, ch.Title)
		}
		if suffix := sourceSuffix(src); suffix != "" {
			fmt.Println(suffix)
		}
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <chapter-id>",
	Short: "Mark a chapter as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chapter id %q", args[0])
		}
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		ack, err := c.CompleteChapter(ctx, id)
		if err != nil {
			return err
		}
		if ack.Queued {
			fmt.Println("Offline: completion queued for sync")
		} else {
			fmt.Println("Chapter completed")
		}
		return nil
	},
}

func init() {
	coursesCmd.Flags().Int64Var(&coursesCategory, "category", 0, "filter by category id")
	rootCmd.AddCommand(coursesCmd, courseCmd, subscribeCmd, chaptersCmd, completeCmd)
}
