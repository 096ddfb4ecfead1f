// Package scanner is the thin HTTP contract boundary to the external scanner
// process (§6.4). The scanner binary itself — dispatch, XML/NSE parsing,
// the actual probing — is out of scope (spec.md §1); this package only
// dispatches the submission request and reports whether it was accepted.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client submits scan jobs to the external scanner over HTTP.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	callbackURL string
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	CallbackURL    string
	ConnectTimeout time.Duration
}

func New(cfg Config) *Client {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     cfg.BaseURL,
		callbackURL: cfg.CallbackURL,
	}
}

// SubmitRequest is the body posted to the external scanner (§6.4).
type SubmitRequest struct {
	Targets     []string               `json:"targets"`
	ScanType    string                 `json:"scan_type"`
	ScanID      string                 `json:"scan_id"`
	ScanOptions map[string]interface{} `json:"scan_options,omitempty"`
}

// Submit dispatches a scan job. A non-202 response or transport failure is
// reported as an error; the Orchestrator is responsible for marking the scan
// failed on that outcome, never this package.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode scanner submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build scanner submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Callback-Url", c.callbackURL)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("submit scan to external scanner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("external scanner returned status %d, expected 202", resp.StatusCode)
	}
	return nil
}
