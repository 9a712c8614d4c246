package cmd

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dlbridge/dlbridge/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live watch view",
	Long:  `Open a terminal view of the download queue, active downloads, and badge, updating live as the engine polls the server.`,
	Run: func(cmd *cobra.Command, args []string) {
		engine := newEngine()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go engine.Run(ctx)

		m := tui.NewModel(engine)
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fatalf("running watch view: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
