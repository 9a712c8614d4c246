package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/dlbridge/dlbridge/internal/history"
	"github.com/dlbridge/dlbridge/internal/state"
)

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.ui == inputState {
		content := lipgloss.JoinVertical(lipgloss.Left,
			TitleStyle.Render("Add Download"),
			"",
			m.urlInput.View(),
			"",
			HelpStyle.Render("[enter] queue  [esc] cancel"),
		)
		box := PanelStyle.Render(content)
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n\n")

	rows := m.rows()
	if len(rows) == 0 {
		b.WriteString(SubtextStyle.Render("No downloads. Press 'a' to add one, 'v' to paste from clipboard."))
	} else {
		for i, d := range rows {
			b.WriteString(m.rowView(d, i == m.cursor, i < len(m.active)))
			b.WriteString("\n")
		}
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(NoticeStyle.Render(m.notice))
	}

	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render(
		"[a]dd [v]clipboard [p]ause [r]esume [c]ancel [d]elete [J/K]move [R]estart [q]uit"))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func (m Model) headerView() string {
	var conn string
	switch m.server.Status {
	case state.Connected:
		conn = lipgloss.NewStyle().Foreground(ColorSuccess).
			Render(fmt.Sprintf("connected :%d", m.server.Port))
	case state.Connecting:
		conn = lipgloss.NewStyle().Foreground(ColorWarning).Render("scanning...")
	default:
		conn = lipgloss.NewStyle().Foreground(ColorError).
			Render(fmt.Sprintf("disconnected (retry in %s)", m.server.BackoffInterval))
	}

	badgeChip := ""
	if m.badge.Text != "" {
		badgeChip = "  " + BadgeStyle(m.badge.Color).Render(m.badge.Text)
	}

	return TitleStyle.Render("dlbridge") + "  " + conn + badgeChip
}

func (m Model) rowView(d state.Download, selected, active bool) string {
	style := ItemStyle
	cursor := "  "
	if selected {
		style = SelectedItemStyle
		cursor = "> "
	}

	name := d.Title
	if name == "" {
		name = d.Filename
	}
	if name == "" {
		name = history.DisplayName(d.URL)
	}
	if len(name) > 60 {
		name = name[:57] + "..."
	}

	meta := string(d.Status)
	if d.Size > 0 {
		meta += "  " + humanize.Bytes(uint64(d.Size))
	}

	line := cursor + style.Render(name) + "  " + SubtextStyle.Render(meta)
	if active && d.Status == state.StatusDownloading {
		width := m.width - 10
		if width > 50 {
			width = 50
		}
		m.bar.Width = width
		line += "\n    " + m.bar.ViewAs(d.Progress)
	}
	return line
}
