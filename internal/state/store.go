// Package state holds the client's live picture of the download server: the
// connection state, the ordered download queue, and the active-download map.
// The store is mutated both optimistically (ahead of server confirmation,
// from user actions) and authoritatively (from server snapshots); the
// reconciler in this package merges the two without resurrecting entries the
// user already removed.
package state

import (
	"errors"
	"sync"
	"time"
)

// Status is a download's lifecycle state.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusError       Status = "error"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusError, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Download is one queue or active-download record.
type Download struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Filename string  `json:"filename,omitempty"`
	Title    string  `json:"title,omitempty"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress,omitempty"`
	Size     int64   `json:"size,omitempty"`
	Priority int     `json:"priority,omitempty"`
}

// ConnStatus is the client's view of the server connection.
type ConnStatus string

const (
	Disconnected ConnStatus = "disconnected"
	Connecting   ConnStatus = "connecting"
	Connected    ConnStatus = "connected"
)

// ServerState is a point-in-time copy of the connection record.
type ServerState struct {
	Status          ConnStatus    `json:"status"`
	Port            int           `json:"port,omitempty"`
	BackoffInterval time.Duration `json:"backoff_interval"`
	ScanInProgress  bool          `json:"scan_in_progress"`
}

// ErrDuplicate is returned when an identical download is already in flight
// for the same canonical URL. No network call is made in that case.
var ErrDuplicate = errors.New("download already in progress for this URL")

// pendingTTL bounds how long optimistic bookkeeping (tombstones for removals,
// pending flags for enqueues) outlives the action it protects. A server
// snapshot older than this cannot lag the action it would contradict.
const pendingTTL = 30 * time.Second

// Store is the single mutable state record for one engine instance. All
// access goes through methods holding the mutex; no method retains the lock
// across I/O, so a caller can never observe a half-applied reconciliation.
type Store struct {
	mu sync.Mutex

	conn ServerState

	queueOrder []string            // display order, authoritative for the session
	queued     map[string]Download // details for queue members
	active     map[string]Download

	// tombstones records ids removed optimistically, so a lagging server
	// snapshot cannot resurrect them.
	tombstones map[string]time.Time
	// pendingAdds records ids enqueued optimistically and not yet seen in
	// any server snapshot, so a snapshot taken before the enqueue cannot
	// silently drop them.
	pendingAdds map[string]time.Time

	now func() time.Time // test hook
}

// NewStore returns a store in the disconnected default state.
func NewStore() *Store {
	return &Store{
		conn:        ServerState{Status: Disconnected},
		queued:      make(map[string]Download),
		active:      make(map[string]Download),
		tombstones:  make(map[string]time.Time),
		pendingAdds: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Server returns a copy of the connection record.
func (s *Store) Server() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// SetConn updates the connection status and port together.
func (s *Store) SetConn(status ConnStatus, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Status = status
	s.conn.Port = port
}

// SetBackoffInterval records the current discovery pacing value for display.
func (s *Store) SetBackoffInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.BackoffInterval = d
}

// BeginScan marks a discovery scan as running. It returns false when a scan
// is already in flight; the caller must then skip, not queue, its scan.
func (s *Store) BeginScan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn.ScanInProgress {
		return false
	}
	s.conn.ScanInProgress = true
	s.conn.Status = Connecting
	return true
}

// EndScan clears the scan flag.
func (s *Store) EndScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.ScanInProgress = false
}

// Enqueue applies an optimistic local enqueue. It rejects a duplicate for a
// URL already queued or actively downloading, before any network round-trip.
func (s *Store) Enqueue(d Download) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.queued {
		if q.URL == d.URL {
			return ErrDuplicate
		}
	}
	for _, a := range s.active {
		if a.URL == d.URL && !a.Status.Terminal() {
			return ErrDuplicate
		}
	}

	if d.Status == "" {
		d.Status = StatusQueued
	}
	s.queueOrder = append(s.queueOrder, d.ID)
	s.queued[d.ID] = d
	s.pendingAdds[d.ID] = s.now()
	delete(s.tombstones, d.ID)
	return nil
}

// Remove applies an optimistic local removal. The id disappears from the
// queue and the active map synchronously, and a tombstone keeps lagging
// server snapshots from reintroducing it. Returns false when the id was not
// present anywhere.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, inQueue := s.queued[id]
	_, inActive := s.active[id]
	if !inQueue && !inActive {
		return false
	}

	s.dropFromQueueLocked(id)
	delete(s.active, id)
	delete(s.pendingAdds, id)
	s.tombstones[id] = s.now()
	return true
}

// Reorder sets the local display order. Unknown ids are ignored and known
// ids missing from the argument keep their relative order at the end, so the
// queue stays a permutation of its members regardless of caller input.
func (s *Store) Reorder(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(ids))
	order := make([]string, 0, len(s.queueOrder))
	for _, id := range ids {
		if _, ok := s.queued[id]; ok && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	for _, id := range s.queueOrder {
		if !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	s.queueOrder = order
}

// SetPriority updates a queued entry's priority locally.
func (s *Store) SetPriority(id string, priority int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.queued[id]
	if !ok {
		return false
	}
	d.Priority = priority
	s.queued[id] = d
	return true
}

// MarkStatus updates the status of a known entry (queued or active) locally,
// ahead of the next snapshot. Used by pause/resume/cancel handlers.
func (s *Store) MarkStatus(id string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.active[id]; ok {
		d.Status = status
		s.active[id] = d
		return true
	}
	if d, ok := s.queued[id]; ok {
		d.Status = status
		s.queued[id] = d
		return true
	}
	return false
}

// AckTerminal acknowledges a terminal entry, removing it from the active
// map. Terminal entries are held until this call so the UI can show the
// final state without flicker.
func (s *Store) AckTerminal(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.active[id]
	if !ok || !d.Status.Terminal() {
		return false
	}
	delete(s.active, id)
	s.dropFromQueueLocked(id)
	return true
}

// Queue returns the queued downloads in display order.
func (s *Store) Queue() []Download {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Download, 0, len(s.queueOrder))
	for _, id := range s.queueOrder {
		if d, ok := s.queued[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// QueueIDs returns the current display order.
func (s *Store) QueueIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queueOrder))
	copy(out, s.queueOrder)
	return out
}

// Active returns a copy of the active-download map.
func (s *Store) Active() map[string]Download {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Download, len(s.active))
	for id, d := range s.active {
		out[id] = d
	}
	return out
}

// Get looks up a download by id in the queue or the active map.
func (s *Store) Get(id string) (Download, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.active[id]; ok {
		return d, true
	}
	d, ok := s.queued[id]
	return d, ok
}

// HasURL reports whether a non-terminal download exists for url.
func (s *Store) HasURL(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queued {
		if q.URL == url {
			return true
		}
	}
	for _, a := range s.active {
		if a.URL == url && !a.Status.Terminal() {
			return true
		}
	}
	return false
}

// Reset returns the store to its initial disconnected state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = ServerState{Status: Disconnected}
	s.queueOrder = nil
	s.queued = make(map[string]Download)
	s.active = make(map[string]Download)
	s.tombstones = make(map[string]time.Time)
	s.pendingAdds = make(map[string]time.Time)
}

// dropFromQueueLocked removes id from the display order and detail map.
func (s *Store) dropFromQueueLocked(id string) {
	delete(s.queued, id)
	for i, qid := range s.queueOrder {
		if qid == id {
			s.queueOrder = append(s.queueOrder[:i], s.queueOrder[i+1:]...)
			break
		}
	}
}

// pruneLocked drops optimistic bookkeeping older than the TTL.
func (s *Store) pruneLocked() {
	cutoff := s.now().Add(-pendingTTL)
	for id, at := range s.tombstones {
		if at.Before(cutoff) {
			delete(s.tombstones, id)
		}
	}
	for id, at := range s.pendingAdds {
		if at.Before(cutoff) {
			delete(s.pendingAdds, id)
		}
	}
}
