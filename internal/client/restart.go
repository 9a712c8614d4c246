package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dlbridge/dlbridge/internal/logging"
	"github.com/dlbridge/dlbridge/internal/probe"
)

// RestartOptions bounds the health-polling phase of a restart.
type RestartOptions struct {
	HealthAttempts int
	HealthInterval time.Duration
	ProbeTimeout   time.Duration
}

// DefaultRestartOptions polls health for roughly ten seconds.
func DefaultRestartOptions() RestartOptions {
	return RestartOptions{
		HealthAttempts: 20,
		HealthInterval: 500 * time.Millisecond,
		ProbeTimeout:   time.Second,
	}
}

// Restart drives the restart fallback chain: direct restart, then managed
// restart, then bounded health polling. No single step failing is fatal on
// its own.
//
// A network error from the managed-restart request is read as a plausible
// success signal: the server going away mid-response is exactly what a
// restarting process looks like. Only when health polling exhausts its
// attempts does Restart return an error, and that error names the statuses
// the restart endpoints produced.
func (c *Client) Restart(ctx context.Context, opts RestartOptions) error {
	if opts.HealthAttempts <= 0 {
		opts = DefaultRestartOptions()
	}

	directErr := c.post(ctx, "/restart", nil)
	if directErr != nil {
		logging.Debug("restart: direct restart failed (%v), trying managed", directErr)

		managedErr := c.post(ctx, "/restart/managed", nil)
		if managedErr != nil {
			var se *StatusError
			if errors.As(managedErr, &se) {
				logging.Debug("restart: managed restart returned status %d", se.Code)
			} else {
				// Connection dropped mid-request: the server is likely
				// already going down to restart. Proceed to polling.
				logging.Debug("restart: managed restart connection dropped (%v), assuming restart in progress", managedErr)
			}
		}

		if err := c.pollHealth(ctx, opts); err != nil {
			return fmt.Errorf("restart failed (direct: %v; managed: %v): %w", directErr, managedErr, err)
		}
		return nil
	}

	if err := c.pollHealth(ctx, opts); err != nil {
		return fmt.Errorf("restart failed: %w", err)
	}
	return nil
}

// pollHealth waits for the server to answer health again.
func (c *Client) pollHealth(ctx context.Context, opts RestartOptions) error {
	for attempt := 0; attempt < opts.HealthAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.HealthInterval):
			}
		}
		if probe.Probe(ctx, c.Port, opts.ProbeTimeout) {
			logging.Info("restart: server healthy again on port %d", c.Port)
			return nil
		}
	}
	return fmt.Errorf("server did not report healthy status after %d attempts", opts.HealthAttempts)
}
