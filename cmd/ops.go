package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlbridge/dlbridge/internal/bridge"
	"github.com/dlbridge/dlbridge/internal/config"
)

const opTimeout = 60 * time.Second

// runAction executes a single request against a fresh engine and prints the
// structured response.
func runAction(req bridge.Request) {
	engine := newEngine()
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	resp := engine.Handle(ctx, req)
	if resp.Status != "success" {
		fatalf("error: %s", resp.Message)
	}
	if len(resp.Data) > 0 {
		out, err := json.MarshalIndent(resp.Data, "", "  ")
		if err != nil {
			fatalf("encoding response: %v", err)
		}
		fmt.Println(string(out))
	} else {
		fmt.Println("ok")
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server connection state and badge",
	Run: func(cmd *cobra.Command, args []string) {
		runAction(bridge.Request{Action: bridge.ActionGetServerStatus})
	},
}

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Queue a download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filename, _ := cmd.Flags().GetString("filename")
		runAction(bridge.Request{
			Action:   bridge.ActionDownload,
			URL:      args[0],
			Filename: filename,
		})
	},
}

var galleryCmd = &cobra.Command{
	Use:   "gallery [url]",
	Short: "Queue a gallery download (gallery-dl)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAction(bridge.Request{Action: bridge.ActionGalleryDownload, URL: args[0]})
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the download queue",
	Run: func(cmd *cobra.Command, args []string) {
		runAction(bridge.Request{Action: bridge.ActionGetQueue})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "Pause a download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAction(bridge.Request{Action: bridge.ActionPauseDownload, ID: args[0]})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a paused download, or all with --all",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		if all {
			runAction(bridge.Request{Action: bridge.ActionResumeDownloads})
			return
		}
		if len(args) != 1 {
			fatalf("error: provide an id or --all")
		}
		runAction(bridge.Request{Action: bridge.ActionResumeDownload, ID: args[0]})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAction(bridge.Request{Action: bridge.ActionCancelDownload, ID: args[0]})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a download from the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAction(bridge.Request{Action: bridge.ActionRemoveFromQueue, ID: args[0]})
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack [id]",
	Short: "Acknowledge a finished download, removing it from the active view",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAction(bridge.Request{Action: bridge.ActionAckDownload, ID: args[0]})
	},
}

var priorityCmd = &cobra.Command{
	Use:   "priority [id] [priority]",
	Short: "Set a download's queue priority",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		p, err := strconv.Atoi(args[1])
		if err != nil {
			fatalf("error: priority must be an integer")
		}
		runAction(bridge.Request{Action: bridge.ActionSetPriority, ID: args[0], Priority: &p})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show, clear, or toggle download history",
	Run: func(cmd *cobra.Command, args []string) {
		if clear, _ := cmd.Flags().GetBool("clear"); clear {
			runAction(bridge.Request{Action: bridge.ActionClearHistory})
			return
		}
		if cmd.Flags().Changed("enabled") {
			enabled, _ := cmd.Flags().GetBool("enabled")
			runAction(bridge.Request{Action: bridge.ActionToggleHistory, Enabled: &enabled})
			return
		}
		limit, _ := cmd.Flags().GetInt("limit")
		runAction(bridge.Request{Action: bridge.ActionGetHistory, Limit: limit})
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show or clear client and server logs",
	Run: func(cmd *cobra.Command, args []string) {
		if clear, _ := cmd.Flags().GetBool("clear"); clear {
			runAction(bridge.Request{Action: bridge.ActionClearLogs})
			return
		}
		limit, _ := cmd.Flags().GetInt("limit")
		runAction(bridge.Request{Action: bridge.ActionGetLogs, Limit: limit})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset local server state and the cached port",
	Run: func(cmd *cobra.Command, args []string) {
		engine := newEngine()
		engine.Store().Reset()
		if err := config.ClearCachedPort(); err != nil {
			fatalf("error: clearing cached port: %v", err)
		}
		fmt.Println("ok")
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the download server",
	Run: func(cmd *cobra.Command, args []string) {
		runAction(bridge.Request{Action: bridge.ActionRestartServer})
	},
}

var configCmd = &cobra.Command{
	Use:   "config [key=value]...",
	Short: "Show or update the server configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			runAction(bridge.Request{Action: bridge.ActionGetConfig})
			return
		}
		cfg := make(map[string]any, len(args))
		for _, arg := range args {
			key, value, found := strings.Cut(arg, "=")
			if !found || key == "" {
				fatalf("error: expected key=value, got %q", arg)
			}
			cfg[key] = parseConfigValue(value)
		}
		runAction(bridge.Request{Action: bridge.ActionSetConfig, Config: cfg})
	},
}

// parseConfigValue keeps numbers and booleans typed on their way to the
// server instead of string-encoding everything.
func parseConfigValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func init() {
	getCmd.Flags().String("filename", "", "Override the saved filename")
	resumeCmd.Flags().Bool("all", false, "Resume every paused download")
	historyCmd.Flags().Bool("clear", false, "Clear the history")
	historyCmd.Flags().Bool("enabled", true, "Enable or disable history recording")
	historyCmd.Flags().Int("limit", 0, "Limit the number of entries shown")
	logsCmd.Flags().Bool("clear", false, "Clear the logs")
	logsCmd.Flags().Int("limit", 100, "Limit the number of entries shown")

	rootCmd.AddCommand(statusCmd, getCmd, galleryCmd, queueCmd, pauseCmd,
		resumeCmd, cancelCmd, removeCmd, ackCmd, priorityCmd, historyCmd,
		logsCmd, resetCmd, restartCmd, configCmd)
}
