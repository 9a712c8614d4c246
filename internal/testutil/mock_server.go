// Package testutil provides a configurable fake download server for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dlbridge/dlbridge/internal/state"
)

// MockServer is a configurable HTTP test double for the download server API.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	App            string // health identity field; default "dlbridge"
	HealthFailures int    // fail this many health requests before answering
	DirectCode     int    // status for POST /restart; default 200
	ManagedCode    int    // status for POST /restart/managed; 0 drops the connection
	StatusCode     int    // non-zero forces this status on GET /status

	// Tracking
	HealthCount  atomic.Int64
	StatusCount  atomic.Int64
	RequestCount atomic.Int64

	mu     sync.Mutex
	queue  []state.Download
	active map[string]state.Download
	config map[string]any
	logs   []string

	removed   []string
	reordered [][]string
}

// MockServerOption configures a MockServer.
type MockServerOption func(*MockServer)

// WithApp overrides the identity field in the health response.
func WithApp(app string) MockServerOption {
	return func(m *MockServer) { m.App = app }
}

// WithHealthFailures makes the first n health requests return 500.
func WithHealthFailures(n int) MockServerOption {
	return func(m *MockServer) { m.HealthFailures = n }
}

// WithRestartCodes sets the direct and managed restart statuses. A managed
// code of 0 drops the connection mid-request, the way a process dying while
// responding looks to the client.
func WithRestartCodes(direct, managed int) MockServerOption {
	return func(m *MockServer) {
		m.DirectCode = direct
		m.ManagedCode = managed
	}
}

// WithStatusCode forces GET /status to answer with the given status.
func WithStatusCode(code int) MockServerOption {
	return func(m *MockServer) { m.StatusCode = code }
}

// WithQueue seeds the server-side queue.
func WithQueue(queue ...state.Download) MockServerOption {
	return func(m *MockServer) { m.queue = queue }
}

// WithActive seeds the server-side active map.
func WithActive(active ...state.Download) MockServerOption {
	return func(m *MockServer) {
		for _, d := range active {
			m.active[d.ID] = d
		}
	}
}

// WithConfig seeds the server configuration.
func WithConfig(cfg map[string]any) MockServerOption {
	return func(m *MockServer) { m.config = cfg }
}

// NewMockServer starts a mock download server on an ephemeral port.
// Call Close when done.
func NewMockServer(opts ...MockServerOption) *MockServer {
	m := &MockServer{
		App:        "dlbridge",
		DirectCode: http.StatusOK,
		active:     make(map[string]state.Download),
		config:     map[string]any{"downloader": "yt-dlp"},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts the server down.
func (m *MockServer) Close() { m.Server.Close() }

// Port returns the ephemeral port the server listens on.
func (m *MockServer) Port() int {
	u, _ := url.Parse(m.Server.URL)
	port, _ := strconv.Atoi(u.Port())
	return port
}

// SetSnapshot replaces the server-side queue and active state.
func (m *MockServer) SetSnapshot(queue []state.Download, active ...state.Download) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = queue
	m.active = make(map[string]state.Download)
	for _, d := range active {
		m.active[d.ID] = d
	}
}

// Removed returns the ids passed to /queue/remove.
func (m *MockServer) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// Reorders returns every order posted to /queue/reorder.
func (m *MockServer) Reorders() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.reordered...)
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.RequestCount.Add(1)

	switch {
	case r.URL.Path == "/health":
		m.handleHealth(w)
	case r.URL.Path == "/status":
		m.handleStatus(w)
	case r.URL.Path == "/config":
		m.handleConfig(w, r)
	case r.URL.Path == "/download" || r.URL.Path == "/gallery":
		m.handleDownload(w, r)
	case r.URL.Path == "/pause" || r.URL.Path == "/resume" || r.URL.Path == "/cancel":
		m.handleTransition(w, r)
	case r.URL.Path == "/queue/remove":
		m.handleRemove(w, r)
	case r.URL.Path == "/queue/reorder":
		m.handleReorder(w, r)
	case r.URL.Path == "/priority", r.URL.Path == "/resume-all":
		writeJSON(w, map[string]string{"status": "ok"})
	case r.URL.Path == "/restart":
		w.WriteHeader(m.DirectCode)
	case r.URL.Path == "/restart/managed":
		if m.ManagedCode == 0 {
			panic(http.ErrAbortHandler) // connection drops mid-response
		}
		w.WriteHeader(m.ManagedCode)
	case r.URL.Path == "/logs":
		m.mu.Lock()
		logs := append([]string(nil), m.logs...)
		m.mu.Unlock()
		writeJSON(w, logs)
	case r.URL.Path == "/logs/clear":
		m.mu.Lock()
		m.logs = nil
		m.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockServer) handleHealth(w http.ResponseWriter) {
	n := m.HealthCount.Add(1)
	if int(n) <= m.HealthFailures {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"app": m.App, "version": "test", "status": "ok"})
}

func (m *MockServer) handleStatus(w http.ResponseWriter) {
	m.StatusCount.Add(1)
	if m.StatusCode != 0 {
		w.WriteHeader(m.StatusCode)
		return
	}
	m.mu.Lock()
	snap := state.Snapshot{Queue: append([]state.Download(nil), m.queue...)}
	for _, d := range m.active {
		snap.Active = append(snap.Active, d)
	}
	m.mu.Unlock()
	writeJSON(w, snap)
}

func (m *MockServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Method == http.MethodPost {
		var cfg map[string]any
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "bad config", http.StatusBadRequest)
			return
		}
		m.config = cfg
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, m.config)
}

func (m *MockServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, state.Download{ID: req.ID, URL: req.URL, Status: state.StatusQueued})
	m.mu.Unlock()
	writeJSON(w, map[string]string{"id": req.ID})
}

func (m *MockServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	if d, ok := m.active[id]; ok {
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case "pause":
			d.Status = state.StatusPaused
		case "resume":
			d.Status = state.StatusDownloading
		case "cancel":
			d.Status = state.StatusCancelled
		}
		m.active[id] = d
	}
	m.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (m *MockServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	m.mu.Lock()
	m.removed = append(m.removed, id)
	for i, d := range m.queue {
		if d.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (m *MockServer) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.reordered = append(m.reordered, req.IDs)
	m.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
