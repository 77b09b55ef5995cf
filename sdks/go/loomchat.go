// Package loomchat provides a Go SDK for the Loomchat chat API.
//
// Loomchat is an LLM chat server with accounts, conversation history and
// streaming completions. This SDK wraps the HTTP API with typed requests and
// responses, transparent token refresh, and SSE decoding for streamed chat.
// It uses only the Go standard library (net/http) with zero external
// dependencies.
//
// Quick start:
//
//	// Set LOOMCHAT_SERVER_ADDR, then:
//	client := loomchat.NewClient()
//
//	if err := client.Login(ctx, "dev@example.com", "hunter2hunter2"); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := client.Chat(ctx, loomchat.ChatRequest{
//	    Model:   "openai/gpt-4o-mini",
//	    Content: "hello",
//	})
package loomchat

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks a message written by the account holder.
	RoleUser Role = "user"

	// RoleAssistant marks a model-generated reply.
	RoleAssistant Role = "assistant"

	// RoleSystem marks a conversation's system prompt.
	RoleSystem Role = "system"
)

// User is an account as returned by the server.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Tier        string    `json:"tier"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// TokenPair is the credential set returned by signup, login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Conversation is one chat thread.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	TokensUsed   int64     `json:"tokens_used"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one turn within a conversation.
type Message struct {
	ID              string       `json:"id"`
	ConversationID  string       `json:"conversation_id"`
	Role            Role         `json:"role"`
	Content         string       `json:"content"`
	Model           string       `json:"model,omitempty"`
	InputTokens     int          `json:"input_tokens"`
	OutputTokens    int          `json:"output_tokens"`
	CostMicro       int64        `json:"cost_micro"`
	EstimatedTokens bool         `json:"estimated_tokens,omitempty"`
	IsError         bool         `json:"is_error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// Attachment is an uploaded image linked to a message.
type Attachment struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id,omitempty"`
	MIMEType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Model is a catalog entry the authenticated user may use.
type Model struct {
	ID string `json:"id"`
	// PromptMicroPerM and CompletionMicroPerM are microdollars per million
	// tokens.
	PromptMicroPerM     int64 `json:"prompt_micro_per_m"`
	CompletionMicroPerM int64 `json:"completion_micro_per_m"`
}

// ChatRequest is one chat turn to send.
type ChatRequest struct {
	// ConversationID selects an existing conversation; empty starts a new one.
	ConversationID string `json:"conversation_id,omitempty"`
	// Model picks the model for a new conversation.
	Model string `json:"model,omitempty"`
	// Content is the user message text.
	Content string `json:"content"`
	// SystemPrompt seeds a new conversation's system message.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// AttachmentIDs are pre-uploaded attachments to link to this message.
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
	// MaxTokens and Temperature pass through to the provider.
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// ChatResult is a completed chat turn.
type ChatResult struct {
	Conversation     *Conversation `json:"conversation"`
	UserMessage      *Message      `json:"user_message"`
	AssistantMessage *Message      `json:"assistant_message"`
}

// SyncEntry describes one conversation changed since the sync cursor.
type SyncEntry struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
	// Hash fingerprints the conversation's message set so clients can
	// skip fetching conversations they already have.
	Hash string `json:"hash"`
}

// SyncResult is the incremental sync response.
type SyncResult struct {
	Changed []SyncEntry `json:"changed"`
	// Cursor is the watermark to pass as "since" on the next sync call,
	// in epoch milliseconds.
	Cursor int64 `json:"cursor"`
}

// UsageTotals is a summed usage aggregate.
type UsageTotals struct {
	Requests     int64 `json:"requests"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CostMicro    int64 `json:"cost_micro"`
}

// UsageDay is a per-model per-day usage aggregate.
type UsageDay struct {
	Day          time.Time `json:"day"`
	Model        string    `json:"model"`
	Requests     int64     `json:"requests"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostMicro    int64     `json:"cost_micro"`
}

// UsageReport is the authenticated user's spend over a window of days.
type UsageReport struct {
	Days   []UsageDay  `json:"days"`
	Totals UsageTotals `json:"totals"`
}
