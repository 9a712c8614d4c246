package bridge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dlbridge/dlbridge/internal/badge"
	"github.com/dlbridge/dlbridge/internal/client"
	"github.com/dlbridge/dlbridge/internal/config"
	"github.com/dlbridge/dlbridge/internal/history"
	"github.com/dlbridge/dlbridge/internal/logging"
	"github.com/dlbridge/dlbridge/internal/relay"
	"github.com/dlbridge/dlbridge/internal/state"
)

// Actions accepted by Handle.
const (
	ActionGetServerStatus        = "getServerStatus"
	ActionGetConfig              = "getConfig"
	ActionSetConfig              = "setConfig"
	ActionDownload               = "download"
	ActionGalleryDownload        = "galleryDownload"
	ActionPauseDownload          = "pauseDownload"
	ActionResumeDownload         = "resumeDownload"
	ActionCancelDownload         = "cancelDownload"
	ActionRemoveFromQueue        = "removeFromQueue"
	ActionAckDownload            = "ackDownload"
	ActionSetPriority            = "setPriority"
	ActionReorderQueue           = "reorderQueue"
	ActionGetQueue               = "getQueue"
	ActionResumeDownloads        = "resumeDownloads"
	ActionToggleHistory          = "toggleHistory"
	ActionClearHistory           = "clearHistory"
	ActionGetHistory             = "getHistory"
	ActionGetLogs                = "getLogs"
	ActionClearLogs              = "clearLogs"
	ActionRestartServer          = "restartServer"
	ActionSetContentButtonHidden = "setContentButtonHidden"
)

// Request is one inbound message.
type Request struct {
	Action   string         `json:"action"`
	ID       string         `json:"id,omitempty"`
	URL      string         `json:"url,omitempty"`
	Filename string         `json:"filename,omitempty"`
	Title    string         `json:"title,omitempty"`
	Priority *int           `json:"priority,omitempty"`
	IDs      []string       `json:"ids,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	Enabled  *bool          `json:"enabled,omitempty"`
	Hidden   *bool          `json:"hidden,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

// Response is the structured reply every handler produces. Front-ends never
// see anything else; low-level errors are folded into Message.
type Response struct {
	Status  string         `json:"status"` // "success" or "error"
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func success(data map[string]any) Response {
	return Response{Status: "success", Data: data}
}

func failure(format string, args ...any) Response {
	return Response{Status: "error", Message: fmt.Sprintf(format, args...)}
}

// Handle dispatches a request to its handler. Every failure path produces a
// structured error response: validation failures return before any network
// call, and a panicking handler is normalized to a generic message rather
// than propagating.
func (b *Bridge) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("handler %s panicked: %v", req.Action, r)
			resp = failure("unknown error")
		}
	}()

	switch req.Action {
	case ActionGetServerStatus:
		return b.handleGetServerStatus()
	case ActionGetConfig:
		return b.handleGetConfig(ctx)
	case ActionSetConfig:
		return b.handleSetConfig(ctx, req)
	case ActionDownload:
		return b.handleDownload(ctx, req, false)
	case ActionGalleryDownload:
		return b.handleDownload(ctx, req, true)
	case ActionPauseDownload:
		return b.handleTransition(ctx, req, state.StatusPaused)
	case ActionResumeDownload:
		return b.handleTransition(ctx, req, state.StatusDownloading)
	case ActionCancelDownload:
		return b.handleTransition(ctx, req, state.StatusCancelled)
	case ActionRemoveFromQueue:
		return b.handleRemoveFromQueue(req)
	case ActionAckDownload:
		return b.handleAckDownload(req)
	case ActionSetPriority:
		return b.handleSetPriority(ctx, req)
	case ActionReorderQueue:
		return b.handleReorderQueue(req)
	case ActionGetQueue:
		return b.handleGetQueue()
	case ActionResumeDownloads:
		return b.handleResumeDownloads(ctx)
	case ActionToggleHistory:
		return b.handleToggleHistory(req)
	case ActionClearHistory:
		b.hist.Clear()
		b.relay.Publish(relay.HistoryUpdatedMsg{})
		return success(nil)
	case ActionGetHistory:
		return b.handleGetHistory(req)
	case ActionGetLogs:
		return b.handleGetLogs(ctx, req)
	case ActionClearLogs:
		return b.handleClearLogs(ctx)
	case ActionRestartServer:
		return b.handleRestartServer(ctx)
	case ActionSetContentButtonHidden:
		return b.handleSetContentButtonHidden(req)
	default:
		return failure("unknown action %q", req.Action)
	}
}

func (b *Bridge) handleGetServerStatus() Response {
	srv := b.store.Server()
	queue := b.store.Queue()
	active := b.store.Active()
	return success(map[string]any{
		"server": srv,
		"badge":  badge.Project(queue, active),
		"theme":  badge.IconTheme(b.getSettings().General.Theme),
	})
}

func (b *Bridge) handleGetConfig(ctx context.Context) Response {
	if c := b.ensureConnected(ctx); c != nil {
		cfg, err := c.Config(ctx)
		if err == nil {
			b.mu.Lock()
			b.settings.ServerConfig = cfg
			snapshot := *b.settings
			b.mu.Unlock()
			if err := config.SaveSettings(&snapshot); err != nil {
				logging.Warn("getConfig: caching server config: %v", err)
			}
			return success(map[string]any{"config": cfg, "cached": false})
		}
		logging.Warn("getConfig: live fetch failed: %v", err)
	}

	// Fall back to the last config fetched successfully.
	b.mu.Lock()
	cached := b.settings.ServerConfig
	b.mu.Unlock()
	if cached == nil {
		return failure("server not reachable and no cached config available")
	}
	return success(map[string]any{"config": cached, "cached": true})
}

func (b *Bridge) handleSetConfig(ctx context.Context, req Request) Response {
	if len(req.Config) == 0 {
		return failure("missing config payload")
	}
	c := b.ensureConnected(ctx)
	if c == nil {
		return failure("server not connected")
	}
	if err := c.SetConfig(ctx, req.Config); err != nil {
		return failure("updating server config: %v", err)
	}
	b.mu.Lock()
	b.settings.ServerConfig = req.Config
	snapshot := *b.settings
	b.mu.Unlock()
	if err := config.SaveSettings(&snapshot); err != nil {
		logging.Warn("setConfig: caching server config: %v", err)
	}
	return success(nil)
}

func (b *Bridge) handleDownload(ctx context.Context, req Request, gallery bool) Response {
	if req.URL == "" {
		return failure("missing url")
	}
	if b.hasCanonical(req.URL) {
		return failure("%v", state.ErrDuplicate)
	}

	c := b.ensureConnected(ctx)
	if c == nil {
		return failure("server not connected")
	}

	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
	}
	d := state.Download{
		ID:       uuid.New().String(),
		URL:      req.URL,
		Filename: req.Filename,
		Title:    req.Title,
		Status:   state.StatusQueued,
		Priority: priority,
	}

	// Optimistic enqueue before the network round-trip, so an immediate
	// duplicate submission short-circuits against local state.
	if err := b.store.Enqueue(d); err != nil {
		return failure("%v", err)
	}
	b.publishState()

	id, err := c.Download(ctx, client.DownloadRequest{
		ID:       d.ID,
		URL:      d.URL,
		Filename: d.Filename,
		Title:    d.Title,
		Priority: d.Priority,
		Gallery:  gallery,
	})
	if err != nil {
		// Roll back to the pre-optimistic state.
		b.store.Remove(d.ID)
		b.publishState()
		return failure("submitting download: %v", err)
	}

	b.hist.Record(history.Event{
		URL:      d.URL,
		Filename: d.Filename,
		Title:    d.Title,
		Status:   string(state.StatusQueued),
	})
	b.relay.Publish(relay.HistoryUpdatedMsg{})

	return success(map[string]any{"id": id})
}

// handleTransition serves pause, resume, and cancel: optimistic status
// change, then the corresponding server call, rolled back on rejection.
func (b *Bridge) handleTransition(ctx context.Context, req Request, to state.Status) Response {
	if req.ID == "" {
		return failure("missing id")
	}
	prev, known := b.store.Get(req.ID)
	if !known {
		return failure("unknown download %q", req.ID)
	}
	c := b.ensureConnected(ctx)
	if c == nil {
		return failure("server not connected")
	}

	b.store.MarkStatus(req.ID, to)
	b.publishState()

	var err error
	switch to {
	case state.StatusPaused:
		err = c.Pause(ctx, req.ID)
	case state.StatusCancelled:
		err = c.Cancel(ctx, req.ID)
	default:
		err = c.Resume(ctx, req.ID)
	}
	if err != nil {
		b.store.MarkStatus(req.ID, prev.Status)
		b.publishState()
		return failure("%s: %v", req.Action, err)
	}
	return success(nil)
}

func (b *Bridge) handleRemoveFromQueue(req Request) Response {
	if req.ID == "" {
		return failure("missing id")
	}
	if !b.store.Remove(req.ID) {
		return failure("unknown download %q", req.ID)
	}
	b.publishState()

	// The local removal is authoritative for the session; the server call
	// confirms it in the background and must not delay the response.
	if c := b.currentClient(); c != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := c.RemoveFromQueue(ctx, req.ID); err != nil {
				logging.Warn("removeFromQueue: server confirmation failed: %v", err)
			}
		}()
	}
	return success(nil)
}

// handleAckDownload releases a terminal entry from the active view. Finished
// downloads stay visible until this acknowledgment; the release is purely
// local, so no server call is involved.
func (b *Bridge) handleAckDownload(req Request) Response {
	if req.ID == "" {
		return failure("missing id")
	}
	if !b.store.AckTerminal(req.ID) {
		return failure("download %q is not in a terminal state", req.ID)
	}
	b.publishState()
	return success(nil)
}

func (b *Bridge) handleSetPriority(ctx context.Context, req Request) Response {
	if req.ID == "" || req.Priority == nil {
		return failure("missing id or priority")
	}
	prev, known := b.store.Get(req.ID)
	if !known {
		return failure("unknown download %q", req.ID)
	}
	c := b.ensureConnected(ctx)
	if c == nil {
		return failure("server not connected")
	}

	b.store.SetPriority(req.ID, *req.Priority)
	if err := c.SetPriority(ctx, req.ID, *req.Priority); err != nil {
		b.store.SetPriority(req.ID, prev.Priority)
		return failure("setting priority: %v", err)
	}
	b.publishState()
	return success(nil)
}

func (b *Bridge) handleReorderQueue(req Request) Response {
	if len(req.IDs) == 0 {
		return failure("missing ids")
	}
	b.store.Reorder(req.IDs)
	b.publishState()

	// Local display order is authoritative for the session; persisting the
	// order on the server is advisory and a failure does not roll back.
	if c := b.currentClient(); c != nil {
		order := b.store.QueueIDs()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := c.Reorder(ctx, order); err != nil {
				logging.Warn("reorderQueue: persisting order on server failed: %v", err)
			}
		}()
	}
	return success(nil)
}

func (b *Bridge) handleGetQueue() Response {
	queue := b.store.Queue()
	active := b.store.Active()
	return success(map[string]any{
		"queue":  queue,
		"active": active,
		"badge":  badge.Project(queue, active),
	})
}

func (b *Bridge) handleResumeDownloads(ctx context.Context) Response {
	c := b.ensureConnected(ctx)
	if c == nil {
		return failure("server not connected")
	}
	if err := c.ResumeAll(ctx); err != nil {
		return failure("resuming downloads: %v", err)
	}
	b.Poll(ctx)
	return success(nil)
}

func (b *Bridge) handleToggleHistory(req Request) Response {
	enabled := !b.hist.Enabled()
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	b.hist.SetEnabled(enabled)

	b.mu.Lock()
	b.settings.History.Enabled = enabled
	snapshot := *b.settings
	b.mu.Unlock()
	if err := config.SaveSettings(&snapshot); err != nil {
		logging.Warn("toggleHistory: saving settings: %v", err)
	}
	return success(map[string]any{"enabled": enabled})
}

func (b *Bridge) handleGetHistory(req Request) Response {
	entries := b.hist.Entries()
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return success(map[string]any{
		"entries": entries,
		"enabled": b.hist.Enabled(),
	})
}

func (b *Bridge) handleGetLogs(ctx context.Context, req Request) Response {
	data := map[string]any{"client": logging.Recent(req.Limit)}
	if c := b.currentClient(); c != nil {
		if lines, err := c.Logs(ctx); err == nil {
			data["server"] = lines
		} else {
			logging.Debug("getLogs: server logs unavailable: %v", err)
		}
	}
	return success(data)
}

func (b *Bridge) handleClearLogs(ctx context.Context) Response {
	logging.Clear()
	if c := b.currentClient(); c != nil {
		if err := c.ClearLogs(ctx); err != nil {
			logging.Debug("clearLogs: clearing server logs: %v", err)
		}
	}
	return success(nil)
}

func (b *Bridge) handleRestartServer(ctx context.Context) Response {
	c := b.ensureConnected(ctx)
	if c == nil {
		return failure("server not connected")
	}
	if err := c.Restart(ctx, client.DefaultRestartOptions()); err != nil {
		b.markDisconnected()
		return failure("%v", err)
	}
	b.Poll(ctx)
	return success(nil)
}

func (b *Bridge) handleSetContentButtonHidden(req Request) Response {
	if req.Hidden == nil {
		return failure("missing hidden flag")
	}
	b.mu.Lock()
	b.settings.General.ContentButtonHidden = *req.Hidden
	snapshot := *b.settings
	b.mu.Unlock()
	if err := config.SaveSettings(&snapshot); err != nil {
		logging.Warn("setContentButtonHidden: saving settings: %v", err)
	}
	return success(nil)
}

// hasCanonical reports whether a non-terminal download already exists for
// the canonical form of url.
func (b *Bridge) hasCanonical(url string) bool {
	key := history.Canonicalize(url)
	for _, d := range b.store.Queue() {
		if history.Canonicalize(d.URL) == key {
			return true
		}
	}
	for _, d := range b.store.Active() {
		if !d.Status.Terminal() && history.Canonicalize(d.URL) == key {
			return true
		}
	}
	return false
}
