// Package openrouter implements the completion port against the OpenRouter
// chat completions API. Requests go through a circuit breaker so a failing
// upstream degrades into fast ErrProviderUnavailable errors instead of piling
// up timeouts.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/loomchat/loomchat/internal/port/outbound"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultTimeout = 120 * time.Second

	// maxSSELine bounds a single server-sent event line. Completion chunks
	// are small; this leaves generous headroom.
	maxSSELine = 1 << 20
)

// Client calls the OpenRouter chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger

	// referer and title populate OpenRouter's app attribution headers.
	referer string
	title   string
}

var _ outbound.CompletionClient = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, e.g. for a test server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger for breaker state changes.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// to attribute traffic to an app.
func WithAttribution(referer, title string) Option {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// NewClient creates a Client with the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openrouter",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Request faults (4xx) are the caller's problem and must not
		// trip the breaker; only upstream faults count as failures.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, outbound.ErrProviderUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("completion breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// wire types for the chat completions endpoint.

type wireRequest struct {
	Model       string                       `json:"model"`
	Messages    []outbound.CompletionMessage `json:"messages"`
	MaxTokens   int                          `json:"max_tokens,omitempty"`
	Temperature float64                      `json:"temperature,omitempty"`
	Stream      bool                         `json:"stream,omitempty"`
	Usage       *wireUsageOpts               `json:"usage,omitempty"`
}

type wireUsageOpts struct {
	Include bool `json:"include"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type wireChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type wireResponse struct {
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
	Error   *wireError   `json:"error"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Complete performs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req outbound.CompletionRequest) (*outbound.CompletionResponse, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.complete(ctx, req)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return result.(*outbound.CompletionResponse), nil
}

func (c *Client) complete(ctx context.Context, req outbound.CompletionRequest) (*outbound.CompletionResponse, error) {
	resp, err := c.post(ctx, wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("completion error %d: %s: %w",
			wire.Error.Code, wire.Error.Message, outbound.ErrProviderUnavailable)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("completion response has no choices: %w", outbound.ErrProviderUnavailable)
	}

	out := &outbound.CompletionResponse{
		Content:      wire.Choices[0].Message.Content,
		Model:        wire.Model,
		FinishReason: wire.Choices[0].FinishReason,
	}
	if wire.Usage != nil {
		out.InputTokens = wire.Usage.PromptTokens
		out.OutputTokens = wire.Usage.CompletionTokens
		out.UsageReported = true
	}
	return out, nil
}

// Stream performs a streaming chat completion, invoking fn per chunk.
func (c *Client) Stream(ctx context.Context, req outbound.CompletionRequest, fn func(outbound.StreamChunk) error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.stream(ctx, req, fn)
	})
	return breakerErr(err)
}

func (c *Client) stream(ctx context.Context, req outbound.CompletionRequest, fn func(outbound.StreamChunk) error) error {
	resp, err := c.post(ctx, wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
		Usage:       &wireUsageOpts{Include: true},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	final := &outbound.CompletionResponse{Model: req.Model}
	var content strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// Comments and blank keep-alive lines.
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var wire wireResponse
		if err := json.Unmarshal([]byte(data), &wire); err != nil {
			return fmt.Errorf("decoding stream chunk: %w", err)
		}
		if wire.Error != nil {
			return fmt.Errorf("completion error %d: %s: %w",
				wire.Error.Code, wire.Error.Message, outbound.ErrProviderUnavailable)
		}
		if wire.Model != "" {
			final.Model = wire.Model
		}
		if wire.Usage != nil {
			final.InputTokens = wire.Usage.PromptTokens
			final.OutputTokens = wire.Usage.CompletionTokens
			final.UsageReported = true
		}
		if len(wire.Choices) == 0 {
			continue
		}
		choice := wire.Choices[0]
		if choice.FinishReason != "" {
			final.FinishReason = choice.FinishReason
		}
		if choice.Delta.Content == "" {
			continue
		}
		content.WriteString(choice.Delta.Content)
		if err := fn(outbound.StreamChunk{Delta: choice.Delta.Content}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading completion stream: %w", err)
	}

	final.Content = content.String()
	return fn(outbound.StreamChunk{Done: true, Response: final})
}

func (c *Client) post(ctx context.Context, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling completion provider: %w: %v", outbound.ErrProviderUnavailable, err)
	}
	return resp, nil
}

// checkStatus translates non-2xx responses. Upstream faults (429, 5xx) map
// to ErrProviderUnavailable so they trip the breaker and surface as 502/503;
// other statuses are request faults and must not.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire wireResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != nil {
		msg = wire.Error.Message
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("provider status %d: %s: %w", resp.StatusCode, msg, outbound.ErrProviderUnavailable)
	}
	return fmt.Errorf("provider status %d: %s", resp.StatusCode, msg)
}

// breakerErr maps circuit breaker rejections onto the provider sentinel.
// The gobreaker error stays in the chain so the HTTP layer can tell an open
// breaker (503) from a plain upstream failure (502).
func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", outbound.ErrProviderUnavailable, err)
	}
	return err
}
