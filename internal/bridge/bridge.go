// Package bridge is the background engine pairing the browser with the
// local download server. It owns the state store, schedules discovery and
// status polling, consolidates history, and serves the typed message
// surface front-ends talk to.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/dlbridge/dlbridge/internal/badge"
	"github.com/dlbridge/dlbridge/internal/client"
	"github.com/dlbridge/dlbridge/internal/config"
	"github.com/dlbridge/dlbridge/internal/discovery"
	"github.com/dlbridge/dlbridge/internal/history"
	"github.com/dlbridge/dlbridge/internal/logging"
	"github.com/dlbridge/dlbridge/internal/probe"
	"github.com/dlbridge/dlbridge/internal/relay"
	"github.com/dlbridge/dlbridge/internal/state"
)

// requestTimeout bounds background confirmation calls to the server.
const requestTimeout = 15 * time.Second

// Options configures a Bridge. Zero-value fields get production defaults.
type Options struct {
	Settings *config.Settings
	History  *history.Log
	Cache    discovery.PortCache
	Probe    probe.Func

	// NewClient builds the API client once a port is discovered.
	NewClient func(port int) *client.Client
}

// Bridge is one engine instance. All mutable state lives in the store and
// the history log; the bridge itself only adds scheduling and dispatch.
type Bridge struct {
	store   *state.Store
	hist    *history.Log
	relay   *relay.Relay
	backoff *discovery.Backoff
	cache   discovery.PortCache
	probeFn probe.Func

	newClient func(port int) *client.Client

	mu       sync.Mutex
	settings *config.Settings
	api      *client.Client // nil while disconnected
}

// New assembles a bridge from options.
func New(opts Options) *Bridge {
	if opts.Settings == nil {
		opts.Settings = config.DefaultSettings()
	}
	if opts.Cache == nil {
		opts.Cache = discovery.FileCache{}
	}
	if opts.Probe == nil {
		opts.Probe = probe.Probe
	}
	if opts.NewClient == nil {
		opts.NewClient = client.New
	}
	if opts.History == nil {
		opts.History = history.NewLog(opts.Settings.History.Limit, opts.Settings.History.Enabled, nil)
	}

	d := opts.Settings.Discovery
	b := &Bridge{
		store:     state.NewStore(),
		hist:      opts.History,
		relay:     relay.New(logging.Debug),
		backoff:   discovery.NewBackoff(d.BaseBackoff, d.MaxBackoff),
		cache:     opts.Cache,
		probeFn:   opts.Probe,
		newClient: opts.NewClient,
		settings:  opts.Settings,
	}
	b.store.SetBackoffInterval(b.backoff.Current())
	return b
}

// Store exposes the state store (read paths for front-ends and tests).
func (b *Bridge) Store() *state.Store { return b.store }

// History exposes the history log.
func (b *Bridge) History() *history.Log { return b.hist }

// Relay exposes the event relay for subscribers.
func (b *Bridge) Relay() *relay.Relay { return b.relay }

// api client accessors; the client pointer swaps on discovery/loss.

func (b *Bridge) currentClient() *client.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.api
}

func (b *Bridge) setClient(c *client.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.api = c
}

// Settings returns a copy of the current settings for read-only use.
func (b *Bridge) Settings() config.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.settings
}

func (b *Bridge) getSettings() *config.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings
}

// Discover runs one discovery pass and returns the found port, or 0. When a
// scan is already in flight it skips rather than queues: the flag check and
// set happen atomically in the store, so two callers can never both scan.
func (b *Bridge) Discover(ctx context.Context, force bool) int {
	if !b.store.BeginScan() {
		logging.Debug("discovery: scan already in progress, skipping")
		return b.store.Server().Port
	}
	defer b.store.EndScan()

	d := b.getSettings().Discovery
	port := discovery.Discover(ctx, b.cache, b.probeFn, discovery.Options{
		MinPort:      d.MinPort,
		MaxPort:      d.MaxPort,
		BatchSize:    d.BatchSize,
		ProbeTimeout: d.ProbeTimeout,
		ForceScan:    force,
	})

	if port == 0 {
		interval := b.backoff.Failure()
		b.store.SetConn(state.Disconnected, 0)
		b.store.SetBackoffInterval(interval)
		b.setClient(nil)
		return 0
	}

	b.store.SetBackoffInterval(b.backoff.Success())
	b.store.SetConn(state.Connected, port)
	b.setClient(b.newClient(port))
	b.relay.Publish(relay.ServerDiscoveredMsg{Port: port})
	return port
}

// ensureConnected returns a usable API client, running discovery if needed.
func (b *Bridge) ensureConnected(ctx context.Context) *client.Client {
	if c := b.currentClient(); c != nil {
		return c
	}
	if b.Discover(ctx, false) == 0 {
		return nil
	}
	return b.currentClient()
}

// Poll fetches a status snapshot, reconciles it into the store, records
// newly terminal downloads into history, and republishes queue and badge.
func (b *Bridge) Poll(ctx context.Context) {
	c := b.currentClient()
	if c == nil {
		return
	}

	snap, err := c.Status(ctx)
	if err != nil {
		logging.Warn("poll: status fetch failed: %v", err)
		b.markDisconnected()
		return
	}

	b.store.ApplySnapshot(snap)

	// Record from the reconciled view, not the raw snapshot, so an entry the
	// user already removed does not reappear in history when it completes
	// server-side.
	for _, d := range b.store.Active() {
		if d.Status.Terminal() && d.Status != state.StatusCancelled {
			b.hist.Record(history.Event{
				URL:      d.URL,
				Filename: d.Filename,
				Title:    d.Title,
				Status:   string(d.Status),
			})
		}
	}

	b.publishState()
}

// markDisconnected drops the connection record after a failed server call.
func (b *Bridge) markDisconnected() {
	b.store.SetConn(state.Disconnected, 0)
	b.setClient(nil)
	b.relay.Publish(relay.ServerLostMsg{})
}

// publishState broadcasts the current queue and badge projection.
func (b *Bridge) publishState() {
	queue := b.store.Queue()
	active := b.store.Active()
	b.relay.Publish(relay.QueueUpdatedMsg{Queue: queue, Active: active})
	b.relay.Publish(relay.BadgeUpdatedMsg{Badge: badge.Project(queue, active)})
}

// Run drives the engine until ctx is cancelled: while disconnected it paces
// discovery attempts by the backoff interval, and while connected it polls
// status at the configured interval.
func (b *Bridge) Run(ctx context.Context) {
	for {
		var wait time.Duration
		if b.currentClient() == nil {
			b.Discover(ctx, false)
			if b.currentClient() != nil {
				b.Poll(ctx)
				wait = b.getSettings().Discovery.PollInterval
			} else {
				wait = b.backoff.Current()
			}
		} else {
			b.Poll(ctx)
			wait = b.getSettings().Discovery.PollInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
