package loomchat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client is the Loomchat SDK client. It holds the session credentials and
// refreshes the access token transparently when the server rejects it.
// A Client is safe for concurrent use.
type Client struct {
	serverAddr string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	tokens TokenPair
}

// NewClient creates a new Loomchat SDK client.
// It reads configuration from LOOMCHAT_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("LOOMCHAT_SERVER_ADDR"),
		timeout:    parseDurationEnv("LOOMCHAT_TIMEOUT", 30*time.Second),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Tokens returns the current credential set, for persisting a session
// across client instances.
func (c *Client) Tokens() TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// SetTokens replaces the client's credential set.
func (c *Client) SetTokens(tokens TokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
}

// authResponse is the envelope returned by signup, login and refresh.
type authResponse struct {
	User   *User      `json:"user"`
	Tokens *TokenPair `json:"tokens"`
}

// Signup registers a new account and signs the client in.
func (c *Client) Signup(ctx context.Context, email, password, displayName string) (*User, error) {
	body := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}
	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", body, &resp); err != nil {
		return nil, err
	}
	c.adoptTokens(resp.Tokens)
	return resp.User, nil
}

// Login exchanges an email and password for a fresh session.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	body := map[string]string{"email": email, "password": password}
	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.adoptTokens(resp.Tokens)
	return resp.User, nil
}

// Refresh rotates the refresh token and replaces the access token.
// It is called automatically when a request comes back 401, but may be
// called directly to refresh ahead of expiry.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	body := map[string]string{
		"session_id":    c.tokens.SessionID,
		"refresh_token": c.tokens.RefreshToken,
	}
	c.mu.Unlock()

	if body["refresh_token"] == "" {
		return fmt.Errorf("%w: no refresh token held", ErrUnauthorized)
	}

	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/refresh", body, &resp); err != nil {
		return err
	}
	c.adoptTokens(resp.Tokens)
	return nil
}

// Logout revokes the session server-side and drops the held credentials.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.SetTokens(TokenPair{})
	return err
}

// Me returns the authenticated account. The server responds with the bare
// user object, not the {user, tokens} envelope the auth endpoints use.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.doJSON(ctx, http.MethodGet, "/api/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Models returns the model catalog available to the account's tier.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	var resp struct {
		Models []Model `json:"models"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/models", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Chat sends one chat turn and waits for the full completion.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	var res ChatResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Conversations lists the account's conversations, most recently updated
// first.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// Conversation fetches one conversation by ID.
func (c *Client) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+id, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+id, nil, nil)
}

// Messages lists a conversation's messages in order.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	path := "/api/conversations/" + conversationID + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Sync returns conversations changed strictly after the cursor, which is an
// epoch-millisecond watermark from a previous call. Pass zero for a full
// listing.
func (c *Client) Sync(ctx context.Context, since int64) (*SyncResult, error) {
	path := "/api/sync"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	var res SyncResult
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Usage returns the account's spend over the last days days.
func (c *Client) Usage(ctx context.Context, days int) (*UsageReport, error) {
	path := "/api/usage"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	var report UsageReport
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Upload stores an image for later attachment to a chat message.
func (c *Client) Upload(ctx context.Context, filename, mimeType string, data []byte) (*Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var att Attachment
	err = c.do(ctx, http.MethodPost, "/api/attachments", buf.Bytes(), mw.FormDataContentType(), &att)
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// streamDelta is the payload of an SSE "delta" event.
type streamDelta struct {
	Content string `json:"content"`
}

// streamError is the payload of an SSE "error" event.
type streamError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// ChatStream sends one chat turn and streams the completion, calling onDelta
// for each content fragment as it arrives. It returns the finished turn once
// the server sends its terminal event.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, onDelta func(content string) error) (*ChatResult, error) {
	payload := struct {
		ChatRequest
		Stream bool `json:"stream"`
	}{ChatRequest: req, Stream: true}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/chat", body, "application/json")
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// The streaming body outlives the client timeout; the context bounds it.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		if isConnectionError(err) {
			return nil, &ServerUnreachableError{Cause: err}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	return readEventStream(resp.Body, onDelta)
}

// readEventStream decodes the server's SSE frames until the terminal "done"
// or "error" event.
func readEventStream(r io.Reader, onDelta func(string) error) (*ChatResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var event, data string
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			switch event {
			case "delta":
				var d streamDelta
				if err := json.Unmarshal([]byte(data), &d); err != nil {
					return nil, fmt.Errorf("decode delta event: %w", err)
				}
				if onDelta != nil {
					if err := onDelta(d.Content); err != nil {
						return nil, err
					}
				}
			case "error":
				var se streamError
				if err := json.Unmarshal([]byte(data), &se); err != nil {
					return nil, fmt.Errorf("decode error event: %w", err)
				}
				return nil, &APIError{Status: se.Status, Message: se.Error}
			case "done":
				var res ChatResult
				if err := json.Unmarshal([]byte(data), &res); err != nil {
					return nil, fmt.Errorf("decode done event: %w", err)
				}
				return &res, nil
			}
			event, data = "", ""
			continue
		}

		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		} else if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stream ended without a terminal event")
}

// doJSON sends body as JSON and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	contentType := ""
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return err
		}
		contentType = "application/json"
	}
	return c.do(ctx, method, path, encoded, contentType, out)
}

// do sends one request, refreshing the access token and retrying once if the
// server answers 401 while the client holds a refresh token.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !isAuthPath(path) && c.Tokens().RefreshToken != "" {
		drain(resp)
		c.logger.Debug("access token rejected, refreshing", "path", path)
		if err := c.Refresh(ctx); err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, body, contentType)
		if err != nil {
			return err
		}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectionError(err) {
			return nil, &ServerUnreachableError{Cause: err}
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, contentType string) (*http.Request, error) {
	if c.serverAddr == "" {
		return nil, errors.New("server address not configured; set LOOMCHAT_SERVER_ADDR or use WithServerAddr")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.serverAddr, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.Tokens().AccessToken; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// errorFromResponse turns a non-2xx response into a typed error.
func (c *Client) errorFromResponse(resp *http.Response) error {
	var envelope struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&envelope)

	if resp.StatusCode == http.StatusTooManyRequests {
		limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitedError{
			Limit:      limit,
			RetryAfter: time.Duration(retryAfter) * time.Second,
			Message:    envelope.Error,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: envelope.Error}
}

func (c *Client) adoptTokens(tokens *TokenPair) {
	if tokens == nil {
		return
	}
	c.SetTokens(*tokens)
}

// isAuthPath reports whether path is an auth endpoint, which never triggers
// a refresh-and-retry.
func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/api/auth/")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func isConnectionError(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
