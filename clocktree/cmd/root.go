// Package cmd provides the command-line interface for clock tree boards.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/clocktree/board"
	"github.com/sarchlab/clocktree/clock"
)

// Environment variables that provide flag defaults. They can also be set in
// a .env file in the working directory.
const (
	envMonitorPort = "CLOCKTREE_MONITOR_PORT"
	envTraceDB     = "CLOCKTREE_TRACE_DB"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clocktree",
	Short: "Inspect and drive the clock tree of a board.",
	Long: `clocktree loads a board file describing clock sources, dividers, ` +
		`multiplexers and outputs, and lets you inspect the tree, request ` +
		`rates, and serve a live monitor.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log every walk and hardware write")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It exits through atexit so that trace databases are
// flushed.
func Execute() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func logger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: level}))
}

// loadBoard builds the tree of a board file with caching and rate
// negotiation enabled.
func loadBoard(path string) (*board.Board, error) {
	return board.Load(path, clock.MakeBuilder().
		WithRuntime().
		WithSetRate().
		WithLogger(logger()))
}

// envOr returns the environment variable key, or def when it is unset.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return def
}
