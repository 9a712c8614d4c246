// Package history keeps the bounded, most-recent-first download history.
// Entries are keyed by canonical URL: recording an event for a URL already
// present updates that entry in place and moves it to the front instead of
// duplicating it.
package history

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/h2non/filetype"

	"github.com/dlbridge/dlbridge/internal/logging"
)

// Entry is one consolidated history record.
type Entry struct {
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonical_url"`
	Filename     string    `json:"filename,omitempty"`
	Title        string    `json:"title,omitempty"`
	Status       string    `json:"status"`
	Kind         string    `json:"kind,omitempty"` // video, image, audio, other
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event is a download event to be recorded.
type Event struct {
	URL      string
	Filename string
	Title    string
	Status   string
}

// Persister stores history entries durably. The in-memory log remains the
// ordering authority; the persister only has to survive restarts.
type Persister interface {
	Upsert(e Entry) error
	Load(limit int) ([]Entry, error)
	Trim(limit int) error
	Clear() error
}

// Log is the consolidated history collection.
type Log struct {
	mu      sync.Mutex
	entries []Entry // most-recent-first
	limit   int
	enabled bool
	store   Persister // may be nil

	now func() time.Time
}

// NewLog creates a history log capped at limit entries. store may be nil for
// a purely in-memory log.
func NewLog(limit int, enabled bool, store Persister) *Log {
	l := &Log{limit: limit, enabled: enabled, store: store, now: time.Now}
	if store != nil {
		entries, err := store.Load(limit)
		if err != nil {
			logging.Warn("history: loading persisted entries: %v", err)
		} else {
			l.entries = entries
		}
	}
	return l
}

// SetEnabled toggles history recording. Disabling does not drop existing
// entries; it only stops new writes.
func (l *Log) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Enabled reports whether recording is on.
func (l *Log) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record consolidates a download event into the log. When an entry with the
// same canonical URL exists its mutable fields are updated in place and it
// moves to the front; otherwise a new entry is prepended and the log is
// trimmed to its cap. Recording is idempotent: applying the same terminal
// event twice leaves a single unchanged entry at the front.
//
// When history is disabled this is a no-op; no entry is created or merged.
func (l *Log) Record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	canonical := Canonicalize(ev.URL)
	now := l.now()

	for i := range l.entries {
		if l.entries[i].CanonicalURL != canonical {
			continue
		}
		e := l.entries[i]
		e.URL = ev.URL
		if ev.Filename != "" {
			e.Filename = ev.Filename
			e.Kind = kindFromFilename(ev.Filename)
		}
		if ev.Title != "" {
			e.Title = ev.Title
		}
		e.Status = ev.Status
		e.UpdatedAt = now
		copy(l.entries[1:i+1], l.entries[:i])
		l.entries[0] = e
		l.persist(e)
		return
	}

	name := ev.Filename
	if name == "" {
		name = DisplayName(ev.URL)
	}
	e := Entry{
		URL:          ev.URL,
		CanonicalURL: canonical,
		Filename:     ev.Filename,
		Title:        ev.Title,
		Status:       ev.Status,
		Kind:         kindFromFilename(name),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	l.persist(e)
}

// Entries returns a copy of the log, most recent first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear drops all entries, in memory and persisted.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	if l.store != nil {
		if err := l.store.Clear(); err != nil {
			logging.Warn("history: clearing persisted entries: %v", err)
		}
	}
}

func (l *Log) persist(e Entry) {
	if l.store == nil {
		return
	}
	if err := l.store.Upsert(e); err != nil {
		logging.Warn("history: persisting entry: %v", err)
		return
	}
	if err := l.store.Trim(l.limit); err != nil {
		logging.Warn("history: trimming persisted entries: %v", err)
	}
}

// kindFromFilename classifies a download by its filename extension.
func kindFromFilename(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "other"
	}
	t := filetype.GetType(ext)
	switch t.MIME.Type {
	case "video", "image", "audio":
		return t.MIME.Type
	}
	return "other"
}
