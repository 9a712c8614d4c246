package tui

import "github.com/charmbracelet/lipgloss"

const inputWidth = 60

var (
	// Colors
	ColorPrimary = lipgloss.Color("#bd93f9")
	ColorSuccess = lipgloss.Color("#50fa7b")
	ColorError   = lipgloss.Color("#ff5555")
	ColorWarning = lipgloss.Color("#ffb86c")
	ColorText    = lipgloss.Color("#f8f8f2")
	ColorSubtext = lipgloss.Color("#6272a4")
	ColorBorder  = lipgloss.Color("#44475a")

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true)

	ItemStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtextStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext)
)

// BadgeStyle renders the badge chip in its projected color.
func BadgeStyle(color string) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#282a36")).
		Background(lipgloss.Color(color)).
		Padding(0, 1).
		Bold(true)
}
