package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avolkov/coursekit/client"
)

var (
	syncWatch    bool
	syncInterval time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay writes queued while offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		syncer := client.NewSyncer(c)
		stats, err := syncer.Reconcile(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Replayed %d, %d still pending\n", stats.Applied, stats.Remaining)

		if !syncWatch {
			return nil
		}
		fmt.Printf("Watching, reconciling every %s (Ctrl-C to stop)\n", syncInterval)
		syncer.Run(ctx, syncInterval)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		syncer := client.NewSyncer(c)
		state, user, err := syncer.Startup(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Server:  %s\n", c.BaseURL())
		fmt.Printf("State:   %s\n", state)
		if user != nil {
			fmt.Printf("User:    %s\n", user.Username)
		}

		pending, err := c.PendingWrites()
		if err != nil {
			return err
		}
		fmt.Printf("Pending: %d\n", len(pending))
		for _, w := range pending {
			fmt.Printf("  #%d %s %s (%s)\n", w.Seq, w.Op, w.Resource, w.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep running and reconcile periodically")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", time.Minute, "reconcile interval in watch mode")
	rootCmd.AddCommand(syncCmd, statusCmd)
}
