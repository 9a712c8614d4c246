package badge

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/dlbridge/dlbridge/internal/state"
)

func TestProject_Counts(t *testing.T) {
	tests := []struct {
		name     string
		queue    int
		active   []state.Status
		wantText string
	}{
		{"empty", 0, nil, ""},
		{"single queued", 1, nil, "1"},
		{"queue plus active", 2, []state.Status{state.StatusDownloading}, "3"},
		{"terminal active not counted", 1, []state.Status{state.StatusCompleted, state.StatusError}, "1"},
		{"paused counts", 0, []state.Status{state.StatusPaused}, "1"},
		{"exactly 99", 99, nil, "99"},
		{"exactly 100", 100, nil, "99+"},
		{"large", 105, nil, "99+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := make([]state.Download, tt.queue)
			for i := range queue {
				queue[i] = state.Download{ID: fmt.Sprintf("q%d", i), Status: state.StatusQueued}
			}
			active := make(map[string]state.Download, len(tt.active))
			for i, st := range tt.active {
				id := fmt.Sprintf("a%d", i)
				active[id] = state.Download{ID: id, Status: st}
			}

			got := Project(queue, active)
			if got.Text != tt.wantText {
				t.Errorf("Project text = %q, want %q", got.Text, tt.wantText)
			}
		})
	}
}

func TestProject_IsPure(t *testing.T) {
	queue := []state.Download{{ID: "q1", Status: state.StatusQueued}}
	active := map[string]state.Download{
		"a1": {ID: "a1", Status: state.StatusDownloading},
		"a2": {ID: "a2", Status: state.StatusError},
	}

	first := Project(queue, active)
	for i := 0; i < 100; i++ {
		if got := Project(queue, active); !reflect.DeepEqual(got, first) {
			t.Fatalf("call %d diverged: %+v != %+v", i, got, first)
		}
	}
	// Inputs are not mutated.
	if len(queue) != 1 || len(active) != 2 {
		t.Error("Project mutated its inputs")
	}
}

func TestProject_Colors(t *testing.T) {
	t.Run("downloading is active color", func(t *testing.T) {
		p := Project(nil, map[string]state.Download{"a": {Status: state.StatusDownloading}})
		if p.Color != ColorActive {
			t.Errorf("color = %s, want %s", p.Color, ColorActive)
		}
	})

	t.Run("errored download dominates", func(t *testing.T) {
		p := Project(nil, map[string]state.Download{
			"a": {Status: state.StatusDownloading},
			"b": {Status: state.StatusError},
		})
		if p.Color != ColorError {
			t.Errorf("color = %s, want %s", p.Color, ColorError)
		}
	})

	t.Run("queued only is idle color", func(t *testing.T) {
		p := Project([]state.Download{{Status: state.StatusQueued}}, nil)
		if p.Color != ColorIdle {
			t.Errorf("color = %s, want %s", p.Color, ColorIdle)
		}
	})
}
