// Package client speaks the download server's HTTP API on the discovered
// port. It is the only place that issues requests to the server; everything
// above it deals in typed results.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dlbridge/dlbridge/internal/probe"
	"github.com/dlbridge/dlbridge/internal/state"
)

// StatusError reports a confirmed server answering with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("server returned status %d", e.Code)
}

// Client is an HTTP client bound to one server port.
type Client struct {
	BaseURL string
	Port    int
	HTTP    *http.Client
}

// New creates a client for the server on a local port.
func New(port int) *Client {
	return &Client{
		BaseURL: probe.BaseURL(port),
		Port:    port,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		// Limit error body read to 1KB
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(bodyBytes))}
	}

	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health fetches and validates the server identity.
func (c *Client) Health(ctx context.Context) (*probe.Health, error) {
	return probe.Check(ctx, c.Port, c.HTTP.Timeout)
}

// Config fetches the server configuration.
func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	var cfg map[string]any
	if err := c.getJSON(ctx, "/config", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetConfig updates the server configuration.
func (c *Client) SetConfig(ctx context.Context, cfg map[string]any) error {
	return c.post(ctx, "/config", cfg)
}

// DownloadRequest is the download-submission payload.
type DownloadRequest struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Title    string `json:"title,omitempty"`
	Priority int    `json:"priority,omitempty"`
	Gallery  bool   `json:"gallery,omitempty"`
}

// Download submits a new download and returns the server-assigned id (the
// client-supplied id when the server accepts it).
func (c *Client) Download(ctx context.Context, req DownloadRequest) (string, error) {
	path := "/download"
	if req.Gallery {
		path = "/gallery"
	}
	resp, err := c.doRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.ID == "" {
		result.ID = req.ID
	}
	return result.ID, nil
}

// Status fetches the authoritative queue/active snapshot.
func (c *Client) Status(ctx context.Context) (state.Snapshot, error) {
	var snap state.Snapshot
	if err := c.getJSON(ctx, "/status", &snap); err != nil {
		return state.Snapshot{}, err
	}
	return snap, nil
}

// Pause pauses a download.
func (c *Client) Pause(ctx context.Context, id string) error {
	return c.post(ctx, "/pause?id="+url.QueryEscape(id), nil)
}

// Resume resumes a paused download.
func (c *Client) Resume(ctx context.Context, id string) error {
	return c.post(ctx, "/resume?id="+url.QueryEscape(id), nil)
}

// Cancel cancels a download.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.post(ctx, "/cancel?id="+url.QueryEscape(id), nil)
}

// RemoveFromQueue removes a queued download.
func (c *Client) RemoveFromQueue(ctx context.Context, id string) error {
	return c.post(ctx, "/queue/remove?id="+url.QueryEscape(id), nil)
}

// SetPriority changes a download's queue priority.
func (c *Client) SetPriority(ctx context.Context, id string, priority int) error {
	return c.post(ctx, "/priority", map[string]any{"id": id, "priority": priority})
}

// Reorder persists a new queue order on the server. Callers treat a failure
// as advisory; local display order stands regardless.
func (c *Client) Reorder(ctx context.Context, ids []string) error {
	return c.post(ctx, "/queue/reorder", map[string]any{"ids": ids})
}

// ResumeAll resumes every paused download.
func (c *Client) ResumeAll(ctx context.Context) error {
	return c.post(ctx, "/resume-all", nil)
}

// Logs fetches the server-side log lines.
func (c *Client) Logs(ctx context.Context) ([]string, error) {
	var lines []string
	if err := c.getJSON(ctx, "/logs", &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// ClearLogs clears the server-side logs.
func (c *Client) ClearLogs(ctx context.Context) error {
	return c.post(ctx, "/logs/clear", nil)
}
