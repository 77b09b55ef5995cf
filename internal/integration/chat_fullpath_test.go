package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loomchat/loomchat/internal/adapter/inbound/api"
	"github.com/loomchat/loomchat/internal/adapter/outbound/memory"
	"github.com/loomchat/loomchat/internal/adapter/outbound/openrouter"
	"github.com/loomchat/loomchat/internal/adapter/outbound/sqlstore"
	"github.com/loomchat/loomchat/internal/domain/session"
	"github.com/loomchat/loomchat/internal/domain/usage"
	"github.com/loomchat/loomchat/internal/domain/user"
	"github.com/loomchat/loomchat/internal/service"
	"go.opentelemetry.io/otel/trace/noop"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// upstreamResponse mirrors the OpenRouter completion payload the provider
// adapter decodes.
type upstreamResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// newUpstream fakes the completion provider. Non-streaming requests get a
// single JSON body; streaming requests get SSE chunks followed by a usage
// frame and [DONE].
func newUpstream(t *testing.T, content string, promptTokens, completionTokens int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected upstream path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}

		var req struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode upstream request: %v", err)
		}

		if !req.Stream {
			body := fmt.Sprintf(`{
				"model": %q,
				"choices": [{"message": {"content": %q}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": %d, "completion_tokens": %d}
			}`, req.Model, content, promptTokens, completionTokens)
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, body)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		half := len(content) / 2
		for _, delta := range []string{content[:half], content[half:]} {
			fmt.Fprintf(w, "data: {\"model\": %q, \"choices\": [{\"delta\": {\"content\": %q}}]}\n\n", req.Model, delta)
			flusher.Flush()
		}
		fmt.Fprintf(w, "data: {\"choices\": [{\"delta\": {}, \"finish_reason\": \"stop\"}], \"usage\": {\"prompt_tokens\": %d, \"completion_tokens\": %d}}\n\n",
			promptTokens, completionTokens)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

// stack is the assembled server: sqlite persistence, in-memory sessions, the
// real provider adapter pointed at a fake upstream, and the HTTP surface.
type stack struct {
	server *httptest.Server
}

func newStack(t *testing.T, upstreamURL string) *stack {
	t.Helper()
	logger := testLogger()

	dsn := "file:" + filepath.Join(t.TempDir(), "loomchat.db")
	store, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, dsn, sqlstore.WithLogger(logger))
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	users := sqlstore.NewUserStore(store)
	chats := sqlstore.NewChatStore(store)
	usageStore := sqlstore.NewUsageStore(store)

	sessions := memory.NewSessionStore()
	t.Cleanup(sessions.Stop)
	sessionSvc := session.NewSessionService(sessions, session.Config{Timeout: time.Hour})
	issuer := session.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), 15*time.Minute)

	client := openrouter.NewClient("test-key",
		openrouter.WithBaseURL(upstreamURL),
		openrouter.WithLogger(logger))

	stats := service.NewStatsService()
	models := []service.ModelSpec{{ID: "openai/gpt-4o-mini", MinTier: user.TierFree}}
	tracer := noop.NewTracerProvider().Tracer("test")

	authSvc := service.NewAuthService(users, sessionSvc, issuer, stats, logger)
	chatSvc := service.NewChatService(chats, client, usage.NewPricingTable(), models, stats, logger, tracer)
	attachSvc := service.NewAttachmentService(chats, memory.NewObjectStore(), service.AttachmentConfig{
		MaxUploadBytes:   1 << 20,
		AllowedMIMETypes: []string{"image/png"},
	}, logger)
	analyticsSvc := service.NewAnalyticsService(usageStore)
	adminSvc := service.NewAdminService(users, logger)

	h := api.NewHandler(authSvc, chatSvc, attachSvc, analyticsSvc, adminSvc, stats, logger)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &stack{server: srv}
}

func (s *stack) post(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (s *stack) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (s *stack) signup(t *testing.T, email string) string {
	t.Helper()
	resp := s.post(t, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": "correct-horse-battery",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	var payload struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return payload.Tokens.AccessToken
}

// TestChatFullPath_Persisted drives one chat turn through the whole chain:
// HTTP handler -> auth middleware -> ChatService -> OpenRouter adapter ->
// fake upstream, with the exchange and its usage row landing in sqlite.
func TestChatFullPath_Persisted(t *testing.T) {
	upstream := newUpstream(t, "The answer is 42.", 12, 5)
	s := newStack(t, upstream.URL)
	token := s.signup(t, "alice@example.com")

	resp := s.post(t, "/api/chat", token, map[string]any{
		"model":   "openai/gpt-4o-mini",
		"content": "What is the answer?",
	})
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("chat status = %d; body: %s", resp.StatusCode, body)
	}
	var result struct {
		Conversation struct {
			ID         string `json:"id"`
			TokensUsed int64  `json:"tokens_used"`
		} `json:"conversation"`
		AssistantMessage struct {
			Content      string `json:"content"`
			InputTokens  int    `json:"input_tokens"`
			OutputTokens int    `json:"output_tokens"`
			CostMicro    int64  `json:"cost_micro"`
		} `json:"assistant_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	resp.Body.Close()

	if result.AssistantMessage.Content != "The answer is 42." {
		t.Errorf("assistant content = %q", result.AssistantMessage.Content)
	}
	if result.AssistantMessage.InputTokens != 12 || result.AssistantMessage.OutputTokens != 5 {
		t.Errorf("token counts = %d/%d, want 12/5",
			result.AssistantMessage.InputTokens, result.AssistantMessage.OutputTokens)
	}
	if result.AssistantMessage.CostMicro <= 0 {
		t.Errorf("cost = %d, want > 0", result.AssistantMessage.CostMicro)
	}
	if result.Conversation.TokensUsed != 17 {
		t.Errorf("conversation tokens = %d, want 17", result.Conversation.TokensUsed)
	}

	// The message history must come back from sqlite in order.
	resp = s.get(t, "/api/conversations/"+result.Conversation.ID+"/messages", token)
	var msgs struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	resp.Body.Close()
	if len(msgs.Messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs.Messages))
	}
	if msgs.Messages[0].Role != "user" || msgs.Messages[1].Role != "assistant" {
		t.Errorf("roles = %s/%s", msgs.Messages[0].Role, msgs.Messages[1].Role)
	}

	// The usage rollup must reflect the turn.
	resp = s.get(t, "/api/usage", token)
	var report struct {
		Totals struct {
			Requests     int64 `json:"requests"`
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
			CostMicro    int64 `json:"cost_micro"`
		} `json:"totals"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode usage report: %v", err)
	}
	resp.Body.Close()
	if report.Totals.Requests != 1 {
		t.Errorf("usage requests = %d, want 1", report.Totals.Requests)
	}
	if report.Totals.InputTokens != 12 || report.Totals.OutputTokens != 5 {
		t.Errorf("usage tokens = %d/%d, want 12/5",
			report.Totals.InputTokens, report.Totals.OutputTokens)
	}
	if report.Totals.CostMicro != result.AssistantMessage.CostMicro {
		t.Errorf("usage cost = %d, message cost = %d",
			report.Totals.CostMicro, result.AssistantMessage.CostMicro)
	}
}

// TestChatFullPath_Stream drives a streaming turn end to end: the upstream's
// SSE chunks are re-emitted by the handler as delta events, and the final
// done event carries the persisted exchange.
func TestChatFullPath_Stream(t *testing.T) {
	upstream := newUpstream(t, "Hello from upstream", 8, 3)
	s := newStack(t, upstream.URL)
	token := s.signup(t, "bob@example.com")

	resp := s.post(t, "/api/chat", token, map[string]any{
		"model":   "openai/gpt-4o-mini",
		"content": "hi",
		"stream":  true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	var deltas strings.Builder
	var doneData string
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		switch event {
		case "delta":
			var d struct {
				Content string `json:"content"`
			}
			if err := json.Unmarshal([]byte(data), &d); err != nil {
				t.Fatalf("decode delta: %v", err)
			}
			deltas.WriteString(d.Content)
		case "done":
			doneData = data
		case "error":
			t.Fatalf("unexpected error event: %s", data)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading stream: %v", err)
	}

	if deltas.String() != "Hello from upstream" {
		t.Errorf("streamed content = %q", deltas.String())
	}
	if doneData == "" {
		t.Fatal("no done event received")
	}
	var done struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
		AssistantMessage struct {
			Content     string `json:"content"`
			InputTokens int    `json:"input_tokens"`
		} `json:"assistant_message"`
	}
	if err := json.Unmarshal([]byte(doneData), &done); err != nil {
		t.Fatalf("decode done event: %v", err)
	}
	if done.AssistantMessage.Content != "Hello from upstream" {
		t.Errorf("final content = %q", done.AssistantMessage.Content)
	}
	if done.AssistantMessage.InputTokens != 8 {
		t.Errorf("input tokens = %d, want 8", done.AssistantMessage.InputTokens)
	}

	// Sync must surface the conversation with a fingerprint.
	resp2 := s.get(t, "/api/sync", token)
	var sync struct {
		Changed []struct {
			ID   string `json:"id"`
			Hash string `json:"hash"`
		} `json:"changed"`
		Cursor int64 `json:"cursor"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&sync); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	resp2.Body.Close()
	if len(sync.Changed) != 1 || sync.Changed[0].ID != done.Conversation.ID {
		t.Fatalf("sync changed = %+v", sync.Changed)
	}
	if sync.Changed[0].Hash == "" {
		t.Error("sync entry has no fingerprint")
	}
	if sync.Cursor == 0 {
		t.Error("sync cursor is zero")
	}
}

// TestRefreshFullPath_SQLiteUsers rotates a refresh token against the sqlite
// user store and in-memory sessions, then proves the old token is burned.
func TestRefreshFullPath_SQLiteUsers(t *testing.T) {
	upstream := newUpstream(t, "x", 1, 1)
	s := newStack(t, upstream.URL)

	resp := s.post(t, "/api/auth/signup", "", map[string]string{
		"email":    "carol@example.com",
		"password": "correct-horse-battery",
	})
	var payload struct {
		Tokens struct {
			RefreshToken string `json:"refresh_token"`
			SessionID    string `json:"session_id"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	resp.Body.Close()

	refresh := func(refreshToken string) *http.Response {
		return s.post(t, "/api/auth/refresh", "", map[string]string{
			"session_id":    payload.Tokens.SessionID,
			"refresh_token": refreshToken,
		})
	}

	resp = refresh(payload.Tokens.RefreshToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	var rotated struct {
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rotated); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	resp.Body.Close()
	if rotated.Tokens.RefreshToken == payload.Tokens.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	// The new access token works against sqlite-backed /api/me.
	resp = s.get(t, "/api/me", rotated.Tokens.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("me status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The consumed refresh token is rejected.
	resp = refresh(payload.Tokens.RefreshToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("stale refresh status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}
