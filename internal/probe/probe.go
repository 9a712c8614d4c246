// Package probe answers one question: is the dlbridge download server
// listening on a given local port. A server is only recognized when its
// health response carries the identifying app field, so an unrelated
// service that happens to answer HTTP on the port is not mistaken for ours.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AppID is the identifying value the server reports in its health response.
const AppID = "dlbridge"

// Health is the server's health-endpoint payload.
type Health struct {
	App     string `json:"app"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

var client = &http.Client{
	// Per-probe deadlines come from the caller's context; the client
	// timeout is a backstop only.
	Timeout: 10 * time.Second,
}

// BaseURL returns the server base URL for a local port.
func BaseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// Check fetches and validates the health endpoint on port. It returns the
// decoded health payload only when the responder identifies itself as ours.
func Check(ctx context.Context, port int, timeout time.Duration) (*Health, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, BaseURL(port)+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health returned status %d", resp.StatusCode)
	}

	var h Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&h); err != nil {
		return nil, fmt.Errorf("malformed health response: %w", err)
	}
	if h.App != AppID {
		return nil, fmt.Errorf("port %d answered health but is not %s (app=%q)", port, AppID, h.App)
	}

	return &h, nil
}

// Probe reports whether our server is listening on port. Timeouts, network
// errors, and identity mismatches are all negative results, never errors:
// during a scan an unreachable port is ordinary, not exceptional.
func Probe(ctx context.Context, port int, timeout time.Duration) bool {
	_, err := Check(ctx, port, timeout)
	return err == nil
}

// Func is the probe signature the discovery layer depends on, so tests can
// substitute a fake without a listening socket.
type Func func(ctx context.Context, port int, timeout time.Duration) bool
