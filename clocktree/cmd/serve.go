package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/clocktree/monitoring"
	"github.com/sarchlab/clocktree/tracing"
)

var (
	servePort int
	serveOpen bool
)

var serveCmd = &cobra.Command{
	Use:   "serve BOARD",
	Short: "Serve a live monitor of a board until interrupted.",
	Long: "`serve BOARD` starts the monitor web server and logs every hardware " +
		"write, rate change and request made through it.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port := servePort
		if !cmd.Flags().Changed("port") {
			if v := envOr(envMonitorPort, ""); v != "" {
				p, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("invalid %s: %w", envMonitorPort, err)
				}
				port = p
			}
		}

		b, err := loadBoard(args[0])
		if err != nil {
			return err
		}

		b.Tree.AcceptHook(tracing.NewLogHook(
			slog.New(slog.NewTextHandler(os.Stderr, nil))))

		url := monitoring.NewMonitor(b.Tree).
			WithPortNumber(port).
			StartServer()

		if serveOpen {
			if err := browser.OpenURL(url); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to open browser: %v\n", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		<-ctx.Done()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"Port of the monitor, random if 0 (default $"+envMonitorPort+")")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false,
		"Open the monitor in a browser")
}
