// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport is the streaming chat-completions client. It speaks the
// OpenRouter-style API: JSON request, SSE response stream of deltas. The
// stream surfaces text deltas, out-of-band reasoning deltas, assembled tool
// calls, and the usage summary as distinct events; provider errors are
// surfaced as TransportError, never conflated with normal stream end.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/gptcli-tui/internal/tools"
)

// =============================================================================
// ERRORS
// =============================================================================

// TransportError is a network or provider failure. The turn is retryable;
// history is unaffected.
type TransportError struct {
	Status  int    // HTTP status, 0 for network-level failures
	Message string // provider-supplied error text when available
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("provider error (HTTP %d): %s", e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("provider error (HTTP %d)", e.Status)
	case e.Message != "":
		return "transport: " + e.Message
	default:
		return fmt.Sprintf("transport: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// =============================================================================
// CLIENT
// =============================================================================

// DefaultBaseURL targets OpenRouter.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Config sets up a client.
type Config struct {
	BaseURL string
	APIKey  string

	// RequestsPerMinute paces outbound calls; zero disables pacing.
	RequestsPerMinute int

	// Timeout applies to non-streaming calls. Streaming calls are bounded
	// by their context.
	Timeout time.Duration
}

// Client issues chat-completions requests.
type Client struct {
	baseURL string
	apiKey  string
	// http carries the configured timeout and serves non-streaming calls.
	// streamHTTP has no timeout: a streaming response lives as long as the
	// model keeps talking, bounded only by the request context.
	http       *http.Client
	streamHTTP *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client from config.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: cfg.Timeout},
		streamHTTP: &http.Client{},
		limiter:    limiter,
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// Request is the chat-completions request body.
type Request struct {
	Model      string             `json:"model"`
	Messages   []ChatMessage      `json:"messages"`
	Stream     bool               `json:"stream,omitempty"`
	Tools      []tools.Definition `json:"tools,omitempty"`
	ToolChoice string             `json:"tool_choice,omitempty"`
	Usage      *usageRequest      `json:"usage,omitempty"`
}

type usageRequest struct {
	Include bool `json:"include"`
}

// Usage is the provider's token accounting for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// =============================================================================
// REQUEST DISPATCH
// =============================================================================

// do sends one request through hc after rate-limit admission. The caller
// owns the response body.
func (c *Client) do(ctx context.Context, hc *http.Client, req Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Message: "rate limit wait cancelled", Err: err}
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Message: "encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeHTTPError(resp)
	}
	return resp, nil
}

// decodeHTTPError extracts the provider's error message from a non-200
// response.
func decodeHTTPError(resp *http.Response) *TransportError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if json.Unmarshal(data, &payload) == nil {
		msg = payload.Error.Message
	}
	if msg == "" {
		msg = string(bytes.TrimSpace(data))
	}
	return &TransportError{Status: resp.StatusCode, Message: msg}
}

// Stream opens a streaming request. The returned stream must be consumed
// on a single goroutine and closed when done.
func (c *Client) Stream(ctx context.Context, req Request) (*Stream, error) {
	req.Stream = true
	req.Usage = &usageRequest{Include: true}
	resp, err := c.do(ctx, c.streamHTTP, req)
	if err != nil {
		return nil, err
	}
	return newStream(resp.Body), nil
}

// Complete issues one non-streaming call and returns the assistant text.
// The summarization service uses this; it needs no deltas or tools.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt, modelID string) (string, error) {
	req := Request{
		Model: modelID,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	resp, err := c.do(ctx, c.http, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &TransportError{Message: "decode response", Err: err}
	}
	if len(payload.Choices) == 0 {
		return "", &TransportError{Message: "empty response"}
	}
	return payload.Choices[0].Message.Content, nil
}
