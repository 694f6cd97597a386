// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultURL is the chat-completions endpoint of a local server.
	DefaultURL = "http://127.0.0.1:1234/v1/chat/completions"

	// DefaultModel is sent when a request names no model.
	DefaultModel = "mimo-7b-rl"

	// DefaultTemperature is the sampling temperature.
	DefaultTemperature = 0.7

	// NoTokenLimit asks the server not to cap the completion length.
	NoTokenLimit = -1

	// maxErrorBody bounds how much of a failed response is read.
	maxErrorBody = 4 * 1024
	// maxErrorExcerpt bounds how much of it is shown.
	maxErrorExcerpt = 300
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the completion client.
type Config struct {
	// URL is the full chat-completions endpoint.
	URL string

	// Model is used when a request leaves Model empty.
	Model string

	// ConnectTimeout bounds dialing the endpoint. Streaming itself has no
	// deadline; cancel the request context instead.
	ConnectTimeout time.Duration

	// PingTimeout bounds Ping.
	PingTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		URL:            DefaultURL,
		Model:          DefaultModel,
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    3 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client posts streaming chat-completion requests. It never retries.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := completion.NewClient(completion.DefaultConfig())
//	body, err := client.Stream(ctx, completion.Request{Messages: conv.Wire()})
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//	for ev, err := range completion.Decode(body) { ... }
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a client, filling zero fields from DefaultConfig.
func NewClient(config Config) *Client {
	def := DefaultConfig()
	if config.URL == "" {
		config.URL = def.URL
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = def.ConnectTimeout
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = def.PingTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &Client{
		config: config,
		// No overall Timeout: it would cut long generations short.
		httpClient: &http.Client{Transport: transport},
	}
}

// NewClientWithHTTP creates a client that uses hc for every request.
func NewClientWithHTTP(config Config, hc *http.Client) *Client {
	c := NewClient(config)
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Stream posts req with streaming enabled and returns the open response body.
// The caller must close it. Canceling ctx aborts the request and unblocks any
// pending body read.
func (c *Client) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	if req.Model == "" {
		req.Model = c.config.Model
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Kind: ErrKindUnknown, Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Kind: ErrKindConnection, Message: "invalid endpoint URL", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyDoError(ctx, c.config.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drainAndClose(resp.Body)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, resp.Status, errorDetail(raw))
	}

	return resp.Body, nil
}

// Ping checks that something answers HTTP at the endpoint's host. Any HTTP
// response counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.PingTimeout)
	defer cancel()

	target := modelsURL(c.config.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &TransportError{Kind: ErrKindConnection, Message: "invalid endpoint URL", Cause: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyDoError(ctx, target, err)
	}
	drainAndClose(resp.Body)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// errorDetail extracts a message from an error response body: the
// OpenAI-style error.message (or a bare string error field) when the body is
// JSON, otherwise a bounded excerpt.
func errorDetail(raw []byte) string {
	if gjson.ValidBytes(raw) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	text := strings.Join(strings.Fields(string(raw)), " ")
	if r := []rune(text); len(r) > maxErrorExcerpt {
		text = string(r[:maxErrorExcerpt]) + "..."
	}
	return text
}

// modelsURL maps .../v1/chat/completions to .../v1/models.
func modelsURL(endpoint string) string {
	if base, ok := strings.CutSuffix(strings.TrimRight(endpoint, "/"), "/chat/completions"); ok {
		return base + "/models"
	}
	return endpoint
}

func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxErrorBody))
	r.Close()
}

// String identifies the client in logs.
func (c *Client) String() string {
	return fmt.Sprintf("completion.Client(%s, model=%s)", c.config.URL, c.config.Model)
}
