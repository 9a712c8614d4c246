// Package tui is the terminal watch view: a live projection of the engine's
// queue, active downloads, and badge, fed by the notification relay.
package tui

import (
	"sort"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dlbridge/dlbridge/internal/badge"
	"github.com/dlbridge/dlbridge/internal/bridge"
	"github.com/dlbridge/dlbridge/internal/state"
)

type uiState int

const (
	dashboardState uiState = iota
	inputState
)

// Model is the root bubbletea model for the watch view.
type Model struct {
	engine *bridge.Bridge
	events <-chan any
	cancel func()

	width  int
	height int
	ui     uiState
	cursor int

	server state.ServerState
	queue  []state.Download
	active []state.Download
	badge  badge.Projection
	notice string

	urlInput textinput.Model
	bar      progress.Model
}

// NewModel builds the watch model and subscribes it to the engine's relay.
func NewModel(engine *bridge.Bridge) Model {
	events, cancel := engine.Relay().Subscribe()

	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com/watch?v=..."
	urlInput.Width = inputWidth
	urlInput.Prompt = ""

	return Model{
		engine:   engine,
		events:   events,
		cancel:   cancel,
		server:   engine.Store().Server(),
		queue:    engine.Store().Queue(),
		active:   sortedActive(engine.Store().Active()),
		urlInput: urlInput,
		bar:      progress.New(progress.WithDefaultGradient()),
	}
}

func (m Model) Init() tea.Cmd {
	return listenForEvents(m.events)
}

// listenForEvents bridges the relay channel into the tea event loop.
func listenForEvents(events <-chan any) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

// rows returns the display list: active downloads first, then the queue.
func (m Model) rows() []state.Download {
	out := make([]state.Download, 0, len(m.active)+len(m.queue))
	out = append(out, m.active...)
	out = append(out, m.queue...)
	return out
}

func sortedActive(active map[string]state.Download) []state.Download {
	out := make([]state.Download, 0, len(active))
	for _, d := range active {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
