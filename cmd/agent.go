package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/dlbridge/dlbridge/internal/config"
	"github.com/dlbridge/dlbridge/internal/logging"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the background agent",
	Long: `Run the dlbridge background agent: periodic server discovery with
exponential backoff, status polling, and state reconciliation. Only one
agent runs per user; a second invocation exits immediately.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := os.MkdirAll(config.GetRuntimeDir(), 0755); err != nil {
			fatalf("creating runtime directory: %v", err)
		}

		lock := flock.New(filepath.Join(config.GetRuntimeDir(), "agent.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			fatalf("acquiring agent lock: %v", err)
		}
		if !locked {
			fatalf("dlbridge agent is already running")
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logging.Debug("releasing agent lock: %v", err)
			}
		}()

		engine := newEngine()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("shutting down...")
			cancel()
		}()

		logging.Info("agent started")
		engine.Run(ctx)
		logging.Info("agent stopped")
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
