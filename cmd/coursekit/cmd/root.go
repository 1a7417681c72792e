package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/avolkov/coursekit/client"
	bboltstorage "github.com/avolkov/coursekit/storage/bbolt"
)

var rootCmd = &cobra.Command{
	Use:   "coursekit",
	Short: "Coursekit is an offline-capable client for the course platform",
	Long: `A command-line client for the course platform API. Reads fall back to a
local cache when the server is unreachable, and writes made offline are
queued and replayed by the sync command.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("base-url", "http://127.0.0.1:8000", "server base URL")
	pf.String("data-dir", defaultDataDir(), "directory for the local database")
	pf.Duration("timeout", 30*time.Second, "network call timeout")
	pf.Bool("verbose", false, "enable debug logging")

	viper.SetEnvPrefix("COURSEKIT")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("base_url", pf.Lookup("base-url"))
	_ = viper.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = viper.BindPFlag("timeout", pf.Lookup("timeout"))
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coursekit"
	}
	return filepath.Join(home, ".coursekit")
}

// newClient wires the client against the local database. The returned
// cleanup closes the database and must be deferred.
func newClient() (*client.Client, func(), error) {
	dataDir := viper.GetString("data_dir")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	store, err := bboltstorage.Open(filepath.Join(dataDir, "coursekit.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening local database: %w", err)
	}

	log := zerolog.Nop()
	if viper.GetBool("verbose") {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	c := client.New(viper.GetString("base_url"), store, store, store,
		client.WithTimeout(viper.GetDuration("timeout")),
		client.WithLogger(log),
	)
	return c, func() { _ = store.Close() }, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// sourceSuffix marks values that were served from the local cache.
func sourceSuffix(src client.Source) string {
	if src == client.SourceCache {
		return " (cached)"
	}
	return ""
}
