// Package badge derives the user-visible badge from queue and active state.
// Projection is a pure function: it reads nothing but its arguments and has
// no side effects, so it can be re-run after every mutation without drift.
package badge

import (
	"strconv"

	"github.com/muesli/termenv"

	"github.com/dlbridge/dlbridge/internal/config"
	"github.com/dlbridge/dlbridge/internal/state"
)

// Badge colors.
const (
	ColorActive = "#50fa7b" // downloads in flight
	ColorIdle   = "#6272a4" // queue populated, nothing moving
	ColorError  = "#ff5555" // at least one errored download
)

// Projection is the computed badge.
type Projection struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Project computes the badge for the given queue and active map.
//
// The count is the queue length plus the active entries in a non-terminal
// status. Zero hides the badge (empty text), 1-99 renders the decimal count,
// anything above caps at "99+".
func Project(queue []state.Download, active map[string]state.Download) Projection {
	count := len(queue)
	downloading := false
	failed := false
	for _, d := range active {
		if !d.Status.Terminal() {
			count++
			if d.Status == state.StatusDownloading {
				downloading = true
			}
		} else if d.Status == state.StatusError {
			failed = true
		}
	}

	var text string
	switch {
	case count == 0:
		text = ""
	case count > 99:
		text = "99+"
	default:
		text = strconv.Itoa(count)
	}

	color := ColorIdle
	if downloading {
		color = ColorActive
	}
	if failed {
		color = ColorError
	}

	return Projection{Text: text, Color: color}
}

// IconTheme resolves the configured theme preference to the icon variant the
// front-end should show. The adaptive preference follows the terminal (or
// system) background.
func IconTheme(pref int) string {
	switch pref {
	case config.ThemeLight:
		return "light"
	case config.ThemeDark:
		return "dark"
	}
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
