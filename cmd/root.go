package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlbridge/dlbridge/internal/bridge"
	"github.com/dlbridge/dlbridge/internal/config"
	"github.com/dlbridge/dlbridge/internal/history"
	"github.com/dlbridge/dlbridge/internal/logging"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dlbridge",
	Short: "Companion bridge between your browser and a local download server",
	Long: `dlbridge pairs a browser with a local yt-dlp/gallery-dl download server.
It discovers the server's ephemeral port, keeps a reconciled view of the
download queue, consolidates history, and exposes the whole thing to
front-ends as simple commands and a live watch view.`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newEngine assembles a bridge engine from the persisted settings. Used by
// every command that talks to the server.
func newEngine() *bridge.Bridge {
	settings, err := config.LoadSettings()
	if err != nil {
		logging.Warn("loading settings: %v, using defaults", err)
		settings = config.DefaultSettings()
	}

	var hist *history.Log
	store, err := history.OpenStore(history.DefaultStorePath())
	if err != nil {
		logging.Warn("opening history store: %v, history will not persist", err)
		hist = history.NewLog(settings.History.Limit, settings.History.Enabled, nil)
	} else {
		hist = history.NewLog(settings.History.Limit, settings.History.Enabled, store)
	}

	return bridge.New(bridge.Options{
		Settings: settings,
		History:  hist,
	})
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
