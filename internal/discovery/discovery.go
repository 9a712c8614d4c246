// Package discovery locates the download server's ephemeral local port.
// The cached port from the previous session is tried first; only when it
// fails validation does a batched scan of the configured range run.
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/dlbridge/dlbridge/internal/config"
	"github.com/dlbridge/dlbridge/internal/logging"
	"github.com/dlbridge/dlbridge/internal/probe"
)

// PortCache abstracts the persisted cached-port hint.
type PortCache interface {
	// Load returns the cached port, or 0 when none is cached.
	Load() int
	// Save records port as the cached hint.
	Save(port int) error
	// Clear invalidates the hint.
	Clear() error
}

// FileCache is the production PortCache backed by the runtime-dir port file.
type FileCache struct{}

func (FileCache) Load() int { return config.LoadCachedPort() }

func (FileCache) Save(port int) error { return config.SaveCachedPort(port) }

func (FileCache) Clear() error { return config.ClearCachedPort() }

// Options configures a discovery run.
type Options struct {
	MinPort      int
	MaxPort      int
	BatchSize    int
	ProbeTimeout time.Duration

	// ForceScan skips the cached-port fast path.
	ForceScan bool

	// OnProgress, if set, is called after each batch with the fraction of
	// the range scanned so far. Purely informational; it never influences
	// the result.
	OnProgress func(fraction float64)
}

func (o *Options) fill(def config.DiscoverySettings) {
	if o.MinPort <= 0 {
		o.MinPort = def.MinPort
	}
	if o.MaxPort < o.MinPort {
		o.MaxPort = def.MaxPort
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = def.ProbeTimeout
	}
}

// Discover finds the server's port, or returns 0 when no server answered.
//
// With a usable cached port it probes only that port; a positive answer is
// returned without touching the rest of the range. A negative answer clears
// the cache before the full scan starts, so a stale hint can never shadow a
// live server elsewhere in the range. On a successful scan the winning port
// is written back to the cache.
//
// Probe errors and timeouts count as negative results; Discover never
// propagates them. A cancelled ctx aborts the scan and yields 0.
func Discover(ctx context.Context, cache PortCache, probeFn probe.Func, opts Options) int {
	opts.fill(config.DefaultSettings().Discovery)

	if !opts.ForceScan {
		if cached := cache.Load(); cached > 0 {
			if probeFn(ctx, cached, opts.ProbeTimeout) {
				logging.Debug("discovery: cached port %d validated", cached)
				return cached
			}
			logging.Debug("discovery: cached port %d failed validation, clearing", cached)
			if err := cache.Clear(); err != nil {
				logging.Warn("discovery: clearing cached port: %v", err)
			}
		}
	}

	total := opts.MaxPort - opts.MinPort + 1
	scanned := 0

	for start := opts.MinPort; start <= opts.MaxPort; start += opts.BatchSize {
		if ctx.Err() != nil {
			return 0
		}

		end := start + opts.BatchSize - 1
		if end > opts.MaxPort {
			end = opts.MaxPort
		}

		if port := scanBatch(ctx, probeFn, start, end, opts.ProbeTimeout); port > 0 {
			logging.Info("discovery: server found on port %d", port)
			if err := cache.Save(port); err != nil {
				logging.Warn("discovery: saving cached port: %v", err)
			}
			return port
		}

		scanned += end - start + 1
		if opts.OnProgress != nil {
			opts.OnProgress(float64(scanned) / float64(total))
		}
	}

	logging.Debug("discovery: no server in %d-%d", opts.MinPort, opts.MaxPort)
	return 0
}

// scanBatch probes ports [start, end] concurrently and returns the lowest
// port that answered positively, or 0.
func scanBatch(ctx context.Context, probeFn probe.Func, start, end int, timeout time.Duration) int {
	results := make([]bool, end-start+1)
	var wg sync.WaitGroup

	for port := start; port <= end; port++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			results[p-start] = probeFn(ctx, p, timeout)
		}(port)
	}
	wg.Wait()

	for i, ok := range results {
		if ok {
			return start + i
		}
	}
	return 0
}
