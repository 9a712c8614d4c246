package bridge_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dlbridge/dlbridge/internal/badge"
	"github.com/dlbridge/dlbridge/internal/bridge"
	"github.com/dlbridge/dlbridge/internal/config"
	"github.com/dlbridge/dlbridge/internal/history"
	"github.com/dlbridge/dlbridge/internal/relay"
	"github.com/dlbridge/dlbridge/internal/state"
	"github.com/dlbridge/dlbridge/internal/testutil"
)

// memCache keeps the cached-port hint in memory so tests never touch the
// runtime dir.
type memCache struct{ port int }

func (c *memCache) Load() int           { return c.port }
func (c *memCache) Save(port int) error { c.port = port; return nil }
func (c *memCache) Clear() error        { c.port = 0; return nil }

func newTestBridge(t *testing.T, mock *testutil.MockServer) *bridge.Bridge {
	t.Helper()
	t.Setenv("DLBRIDGE_HOME", t.TempDir())

	s := config.DefaultSettings()
	s.Discovery.MinPort = mock.Port()
	s.Discovery.MaxPort = mock.Port()
	s.Discovery.ProbeTimeout = time.Second

	return bridge.New(bridge.Options{Settings: s, Cache: &memCache{}})
}

func connect(t *testing.T, b *bridge.Bridge, mock *testutil.MockServer) {
	t.Helper()
	if port := b.Discover(context.Background(), false); port != mock.Port() {
		t.Fatalf("Discover = %d, want %d", port, mock.Port())
	}
}

func TestDiscover_ConnectsAndAnnounces(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	b := newTestBridge(t, mock)
	ch, cancel := b.Relay().Subscribe()
	defer cancel()

	connect(t, b, mock)

	srv := b.Store().Server()
	if srv.Status != state.Connected || srv.Port != mock.Port() {
		t.Errorf("server state = %+v", srv)
	}

	select {
	case msg := <-ch:
		if got, ok := msg.(relay.ServerDiscoveredMsg); !ok || got.Port != mock.Port() {
			t.Errorf("announcement = %#v", msg)
		}
	case <-time.After(time.Second):
		t.Error("no discovery announcement published")
	}
}

func TestDiscover_FailureGrowsBackoff(t *testing.T) {
	mock := testutil.NewMockServer()
	mock.Close() // nothing listening

	t.Setenv("DLBRIDGE_HOME", t.TempDir())
	s := config.DefaultSettings()
	s.Discovery.MinPort = mock.Port()
	s.Discovery.MaxPort = mock.Port()
	s.Discovery.ProbeTimeout = 100 * time.Millisecond
	s.Discovery.BaseBackoff = time.Second
	s.Discovery.MaxBackoff = 4 * time.Second

	b := bridge.New(bridge.Options{Settings: s, Cache: &memCache{}})
	ctx := context.Background()

	var intervals []time.Duration
	for i := 0; i < 4; i++ {
		if port := b.Discover(ctx, false); port != 0 {
			t.Fatalf("Discover found a server on a closed port: %d", port)
		}
		intervals = append(intervals, b.Store().Server().BackoffInterval)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	for i := range want {
		if intervals[i] != want[i] {
			t.Errorf("backoff after failure %d = %v, want %v", i+1, intervals[i], want[i])
		}
	}
	if b.Store().Server().Status != state.Disconnected {
		t.Error("server should be marked disconnected")
	}
}

func TestHandleDownload_RejectsDuplicateURL(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	first := b.Handle(ctx, bridge.Request{Action: bridge.ActionDownload, URL: "https://Example.com/video/"})
	if first.Status != "success" {
		t.Fatalf("first download failed: %s", first.Message)
	}

	// Same resource under a different surface form of the URL.
	second := b.Handle(ctx, bridge.Request{Action: bridge.ActionDownload, URL: "https://example.com/video"})
	if second.Status != "error" {
		t.Fatal("duplicate URL should be rejected")
	}
	if len(b.Store().Queue()) != 1 {
		t.Errorf("queue length = %d, want 1", len(b.Store().Queue()))
	}
}

func TestHandleDownload_ValidationFailsBeforeAnyNetworkCall(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)

	resp := b.Handle(context.Background(), bridge.Request{Action: bridge.ActionDownload})
	if resp.Status != "error" {
		t.Fatal("missing url must fail")
	}
	if n := mock.RequestCount.Load(); n != 0 {
		t.Errorf("validation failure reached the server (%d requests)", n)
	}
}

func TestHandleDownload_RollsBackWhenServerRejects(t *testing.T) {
	mock := testutil.NewMockServer()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	mock.Close() // submission will fail on the wire

	resp := b.Handle(context.Background(), bridge.Request{
		Action: bridge.ActionDownload,
		URL:    "https://example.com/video",
	})
	if resp.Status != "error" {
		t.Fatal("expected failure when the server is gone")
	}
	if len(b.Store().Queue()) != 0 {
		t.Error("optimistic enqueue must be rolled back on submission failure")
	}
}

func TestBadge_CapsAt99Plus(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		resp := b.Handle(ctx, bridge.Request{
			Action: bridge.ActionDownload,
			URL:    fmt.Sprintf("https://example.com/item/%d", i),
		})
		if resp.Status != "success" {
			t.Fatalf("download %d failed: %s", i, resp.Message)
		}
	}

	resp := b.Handle(ctx, bridge.Request{Action: bridge.ActionGetQueue})
	proj, ok := resp.Data["badge"].(badge.Projection)
	if !ok {
		t.Fatalf("badge data = %#v", resp.Data["badge"])
	}
	if proj.Text != "99+" {
		t.Errorf("badge text = %q, want 99+", proj.Text)
	}
}

func TestHandleRemoveFromQueue_RespondsBeforeServerConfirms(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	resp := b.Handle(ctx, bridge.Request{Action: bridge.ActionDownload, URL: "https://example.com/video"})
	if resp.Status != "success" {
		t.Fatal(resp.Message)
	}
	id := resp.Data["id"].(string)

	resp = b.Handle(ctx, bridge.Request{Action: bridge.ActionRemoveFromQueue, ID: id})
	if resp.Status != "success" {
		t.Fatalf("remove failed: %s", resp.Message)
	}
	if len(b.Store().Queue()) != 0 {
		t.Error("download must be gone from the local queue immediately")
	}

	// The server confirmation runs in the background; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		removed := mock.Removed()
		if len(removed) == 1 && removed[0] == id {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never saw the removal, got %v", removed)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleRemoveFromQueue_UnknownID(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)

	resp := b.Handle(context.Background(), bridge.Request{Action: bridge.ActionRemoveFromQueue, ID: "nope"})
	if resp.Status != "error" {
		t.Fatal("removing an unknown id must fail")
	}
}

func TestHandleTransition_RollsBackOnServerError(t *testing.T) {
	mock := testutil.NewMockServer()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	resp := b.Handle(ctx, bridge.Request{Action: bridge.ActionDownload, URL: "https://example.com/video"})
	if resp.Status != "success" {
		t.Fatal(resp.Message)
	}
	id := resp.Data["id"].(string)
	mock.Close()

	resp = b.Handle(ctx, bridge.Request{Action: bridge.ActionPauseDownload, ID: id})
	if resp.Status != "error" {
		t.Fatal("pause should fail when the server is gone")
	}
	d, ok := b.Store().Get(id)
	if !ok || d.Status != state.StatusQueued {
		t.Errorf("status after rollback = %+v", d)
	}
}

func TestHandleGetConfig_CachesAndFallsBack(t *testing.T) {
	mock := testutil.NewMockServer(testutil.WithConfig(map[string]any{"downloader": "yt-dlp"}))
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	resp := b.Handle(ctx, bridge.Request{Action: bridge.ActionGetConfig})
	if resp.Status != "success" {
		t.Fatalf("live getConfig failed: %s", resp.Message)
	}
	if resp.Data["cached"] != false {
		t.Error("live fetch should report cached=false")
	}

	mock.Close()

	resp = b.Handle(ctx, bridge.Request{Action: bridge.ActionGetConfig})
	if resp.Status != "success" {
		t.Fatalf("fallback getConfig failed: %s", resp.Message)
	}
	if resp.Data["cached"] != true {
		t.Error("fallback should report cached=true")
	}
	cfg, ok := resp.Data["config"].(map[string]any)
	if !ok || cfg["downloader"] != "yt-dlp" {
		t.Errorf("fallback config = %#v", resp.Data["config"])
	}
}

func TestHandleGetConfig_NoServerNoCache(t *testing.T) {
	mock := testutil.NewMockServer()
	mock.Close()
	b := newTestBridge(t, mock)

	resp := b.Handle(context.Background(), bridge.Request{Action: bridge.ActionGetConfig})
	if resp.Status != "error" {
		t.Fatal("getConfig with no server and no cache must fail")
	}
}

func TestPoll_ReconcilesAndRecordsHistory(t *testing.T) {
	mock := testutil.NewMockServer(
		testutil.WithActive(
			state.Download{ID: "a1", URL: "https://example.com/done", Filename: "done.mp4", Status: state.StatusCompleted},
			state.Download{ID: "a2", URL: "https://example.com/busy", Status: state.StatusDownloading, Progress: 0.3},
		),
	)
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)

	b.Poll(context.Background())

	active := b.Store().Active()
	if len(active) != 2 {
		t.Fatalf("active = %+v", active)
	}
	if active["a1"].Status != state.StatusCompleted {
		t.Errorf("a1 = %+v", active["a1"])
	}

	entries := b.History().Entries()
	if len(entries) != 1 {
		t.Fatalf("history = %+v", entries)
	}
	if entries[0].URL != "https://example.com/done" || entries[0].Status != string(state.StatusCompleted) {
		t.Errorf("history entry = %+v", entries[0])
	}
}

func TestPoll_ServerLossPublishesAndDisconnects(t *testing.T) {
	mock := testutil.NewMockServer()
	b := newTestBridge(t, mock)
	connect(t, b, mock)

	ch, cancel := b.Relay().Subscribe()
	defer cancel()

	mock.Close()
	b.Poll(context.Background())

	if b.Store().Server().Status != state.Disconnected {
		t.Error("bridge should be disconnected after a failed poll")
	}
	select {
	case msg := <-ch:
		if _, ok := msg.(relay.ServerLostMsg); !ok {
			t.Errorf("first event = %#v, want ServerLostMsg", msg)
		}
	case <-time.After(time.Second):
		t.Error("no server-lost event published")
	}
}

func TestHandleRestartServer_Succeeds(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)

	resp := b.Handle(context.Background(), bridge.Request{Action: bridge.ActionRestartServer})
	if resp.Status != "success" {
		t.Fatalf("restart failed: %s", resp.Message)
	}
	if b.Store().Server().Status != state.Connected {
		t.Error("bridge should stay connected after a clean restart")
	}
}

func TestHandleAckDownload_ReleasesTerminalEntry(t *testing.T) {
	mock := testutil.NewMockServer(
		testutil.WithActive(
			state.Download{ID: "a1", URL: "https://example.com/done", Status: state.StatusCompleted},
		),
	)
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	b.Poll(ctx)
	if _, ok := b.Store().Get("a1"); !ok {
		t.Fatal("completed download missing after poll")
	}

	resp := b.Handle(ctx, bridge.Request{Action: bridge.ActionAckDownload, ID: "a1"})
	if resp.Status != "success" {
		t.Fatalf("ack failed: %s", resp.Message)
	}
	if _, ok := b.Store().Get("a1"); ok {
		t.Error("acknowledged entry still present")
	}
	if n := len(mock.Removed()); n != 0 {
		t.Errorf("ack is local only, server saw %d removals", n)
	}
}

func TestHandleAckDownload_RefusesNonTerminal(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	resp := b.Handle(ctx, bridge.Request{Action: bridge.ActionDownload, URL: "https://example.com/video"})
	if resp.Status != "success" {
		t.Fatal(resp.Message)
	}
	id := resp.Data["id"].(string)

	resp = b.Handle(ctx, bridge.Request{Action: bridge.ActionAckDownload, ID: id})
	if resp.Status != "error" {
		t.Fatal("acknowledging a queued download must fail")
	}
	if _, ok := b.Store().Get(id); !ok {
		t.Error("refused ack must not drop the entry")
	}
}

func TestPoll_TombstonedCompletionStaysOutOfHistory(t *testing.T) {
	mock := testutil.NewMockServer(
		testutil.WithActive(
			state.Download{ID: "a1", URL: "https://example.com/doomed", Status: state.StatusDownloading},
		),
	)
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	b.Poll(ctx)
	if !b.Store().Remove("a1") {
		t.Fatal("remove failed")
	}

	// The server finishes the download before it learns of the removal.
	mock.SetSnapshot(nil,
		state.Download{ID: "a1", URL: "https://example.com/doomed", Status: state.StatusCompleted})
	b.Poll(ctx)

	if _, ok := b.Store().Get("a1"); ok {
		t.Error("removed download resurrected by completion report")
	}
	if entries := b.History().Entries(); len(entries) != 0 {
		t.Errorf("removed download recorded into history: %+v", entries)
	}
}

func TestHandlers_ConcurrentSettingsUpdates(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		hidden := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b.Handle(ctx, bridge.Request{Action: bridge.ActionToggleHistory})
				b.Handle(ctx, bridge.Request{Action: bridge.ActionSetContentButtonHidden, Hidden: &hidden})
			}
		}()
	}
	wg.Wait()

	resp := b.Handle(ctx, bridge.Request{Action: bridge.ActionGetHistory})
	if resp.Status != "success" {
		t.Fatalf("settings state corrupted by concurrent updates: %s", resp.Message)
	}
}

func TestHandleToggleHistory(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)

	resp := b.Handle(context.Background(), bridge.Request{Action: bridge.ActionToggleHistory})
	if resp.Status != "success" || resp.Data["enabled"] != false {
		t.Fatalf("toggle = %+v", resp)
	}
	if b.History().Enabled() {
		t.Error("history should be disabled after toggle")
	}

	on := true
	resp = b.Handle(context.Background(), bridge.Request{Action: bridge.ActionToggleHistory, Enabled: &on})
	if resp.Data["enabled"] != true || !b.History().Enabled() {
		t.Error("explicit enable did not apply")
	}
}

func TestHandleGetHistory_HonorsLimit(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Handle(ctx, bridge.Request{
			Action: bridge.ActionDownload,
			URL:    fmt.Sprintf("https://example.com/h/%d", i),
		})
	}

	resp := b.Handle(ctx, bridge.Request{Action: bridge.ActionGetHistory, Limit: 2})
	entries, ok := resp.Data["entries"].([]history.Entry)
	if !ok {
		t.Fatalf("entries data = %#v", resp.Data["entries"])
	}
	if len(entries) != 2 {
		t.Errorf("limited history length = %d, want 2", len(entries))
	}
	if entries[0].URL != "https://example.com/h/4" {
		t.Errorf("newest entry = %+v", entries[0])
	}
}

func TestHandle_UnknownAction(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)

	resp := b.Handle(context.Background(), bridge.Request{Action: "explode"})
	if resp.Status != "error" {
		t.Fatal("unknown action must produce a structured error")
	}
}

func TestHandleGetServerStatus(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	b := newTestBridge(t, mock)
	connect(t, b, mock)

	resp := b.Handle(context.Background(), bridge.Request{Action: bridge.ActionGetServerStatus})
	if resp.Status != "success" {
		t.Fatal(resp.Message)
	}
	srv, ok := resp.Data["server"].(state.ServerState)
	if !ok || srv.Port != mock.Port() {
		t.Errorf("server data = %#v", resp.Data["server"])
	}
	if _, ok := resp.Data["badge"].(badge.Projection); !ok {
		t.Errorf("badge data = %#v", resp.Data["badge"])
	}
}
