package tui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dlbridge/dlbridge/internal/bridge"
	"github.com/dlbridge/dlbridge/internal/relay"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case relay.ServerDiscoveredMsg:
		m.server = m.engine.Store().Server()
		m.notice = ""
		return m, listenForEvents(m.events)

	case relay.ServerLostMsg:
		m.server = m.engine.Store().Server()
		m.notice = "server connection lost, rediscovering..."
		return m, listenForEvents(m.events)

	case relay.QueueUpdatedMsg:
		m.queue = msg.Queue
		m.active = sortedActive(msg.Active)
		if max := len(m.rows()) - 1; m.cursor > max && max >= 0 {
			m.cursor = max
		}
		return m, listenForEvents(m.events)

	case relay.BadgeUpdatedMsg:
		m.badge = msg.Badge
		return m, listenForEvents(m.events)

	case relay.HistoryUpdatedMsg:
		return m, listenForEvents(m.events)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.ui == inputState {
			return m.updateInput(msg)
		}
		return m.updateDashboard(msg)
	}

	return m, nil
}

func (m Model) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.cancel()
		return m, tea.Quit

	case "a":
		m.ui = inputState
		m.urlInput.SetValue("")
		m.urlInput.Focus()
		return m, nil

	case "v":
		if !m.engine.Settings().General.ClipboardMonitor {
			m.notice = "clipboard monitoring is disabled in settings"
			return m, nil
		}
		text, err := clipboard.ReadAll()
		if err != nil || strings.TrimSpace(text) == "" {
			m.notice = "clipboard is empty"
			return m, nil
		}
		m.submit(strings.TrimSpace(text))
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.rows())-1 {
			m.cursor++
		}

	case "K", "J":
		m.moveSelected(msg.String() == "K")

	case "p":
		m.act(bridge.ActionPauseDownload)
	case "r":
		m.act(bridge.ActionResumeDownload)
	case "c":
		m.act(bridge.ActionCancelDownload)
	case "d":
		m.dismiss()
	case "R":
		m.act(bridge.ActionRestartServer)
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.ui = dashboardState
		m.urlInput.Blur()
		return m, nil
	case "enter":
		url := strings.TrimSpace(m.urlInput.Value())
		m.ui = dashboardState
		m.urlInput.Blur()
		if url != "" {
			m.submit(url)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

// submit enqueues a download through the message surface.
func (m *Model) submit(url string) {
	resp := m.engine.Handle(context.Background(), bridge.Request{
		Action: bridge.ActionDownload,
		URL:    url,
	})
	if resp.Status != "success" {
		m.notice = resp.Message
		return
	}
	m.notice = "queued " + url
}

// act runs an id-carrying action against the selected row.
func (m *Model) act(action string) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return
	}
	req := bridge.Request{Action: action}
	if action != bridge.ActionRestartServer {
		req.ID = rows[m.cursor].ID
	}
	resp := m.engine.Handle(context.Background(), req)
	if resp.Status != "success" {
		m.notice = resp.Message
	} else {
		m.notice = ""
	}
}

// dismiss releases the selected row: a finished download is acknowledged
// away, anything still pending is removed from the queue.
func (m *Model) dismiss() {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return
	}
	if rows[m.cursor].Status.Terminal() {
		m.act(bridge.ActionAckDownload)
		return
	}
	m.act(bridge.ActionRemoveFromQueue)
}

// moveSelected shifts the selected queue entry up or down in display order.
func (m *Model) moveSelected(up bool) {
	// Only queue rows reorder; active rows are fixed at the top.
	qIndex := m.cursor - len(m.active)
	if qIndex < 0 || qIndex >= len(m.queue) {
		return
	}
	target := qIndex + 1
	if up {
		target = qIndex - 1
	}
	if target < 0 || target >= len(m.queue) {
		return
	}

	ids := make([]string, len(m.queue))
	for i, d := range m.queue {
		ids[i] = d.ID
	}
	ids[qIndex], ids[target] = ids[target], ids[qIndex]

	resp := m.engine.Handle(context.Background(), bridge.Request{
		Action: bridge.ActionReorderQueue,
		IDs:    ids,
	})
	if resp.Status != "success" {
		m.notice = resp.Message
		return
	}
	if up {
		m.cursor--
	} else {
		m.cursor++
	}
}
