// Package chat contains the domain types for conversations and messages.
package chat

import (
	"strings"
	"time"
)

// MaxTitleLength caps auto-derived conversation titles.
const MaxTitleLength = 60

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Conversation holds chat metadata. Messages are stored separately and
// loaded on demand.
type Conversation struct {
	// ID is the unique identifier (UUID).
	ID string `json:"id"`
	// UserID is the owning account. Every store query filters by it.
	UserID string `json:"user_id"`
	// Title is auto-derived from the first user message unless set explicitly.
	Title string `json:"title"`
	// Model is the completion model used for this conversation.
	Model string `json:"model"`
	// SystemPrompt is an optional system message prepended to every request.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// TokensUsed is the running total of prompt+completion tokens.
	TokensUsed int64 `json:"tokens_used"`
	// CreatedAt is when the conversation was created (UTC).
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt advances on every appended message; the sync cursor orders by it.
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a single message in a conversation.
type Message struct {
	// ID is the unique identifier (UUID).
	ID string `json:"id"`
	// ConversationID references the owning conversation.
	ConversationID string `json:"conversation_id"`
	// Role is who sent the message.
	Role Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Model is the model that produced an assistant message (empty otherwise).
	Model string `json:"model,omitempty"`
	// InputTokens and OutputTokens come from the provider's usage block.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	// CostMicro is the message cost in integer microdollars.
	CostMicro int64 `json:"cost_micro"`
	// EstimatedTokens marks token counts derived heuristically rather
	// than reported by the provider.
	EstimatedTokens bool `json:"estimated_tokens,omitempty"`
	// IsError marks assistant messages recording a failed completion.
	// Error messages are excluded from usage accounting.
	IsError bool `json:"is_error,omitempty"`
	// CreatedAt is when the message was stored (UTC).
	CreatedAt time.Time `json:"created_at"`
	// Attachments are images linked to this message.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is an uploaded image linked to a message.
type Attachment struct {
	// ID is the unique identifier (UUID).
	ID string `json:"id"`
	// MessageID references the owning message. Empty until linked.
	MessageID string `json:"message_id,omitempty"`
	// UserID is the uploading account.
	UserID string `json:"-"`
	// ObjectKey is the key in object storage. Never exposed to clients.
	ObjectKey string `json:"-"`
	// MIMEType is the validated content type (e.g. image/png).
	MIMEType string `json:"mime_type"`
	// SizeBytes is the validated upload size.
	SizeBytes int64 `json:"size_bytes"`
	// CreatedAt is when the attachment was uploaded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// DeriveTitle builds a conversation title from the first user message.
// Uses the first line, trimmed to MaxTitleLength on a word boundary.
func DeriveTitle(content string) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "New conversation"
	}
	if len(line) <= MaxTitleLength {
		return line
	}
	cut := line[:MaxTitleLength]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

// EstimateTokens approximates a token count for text without a tokenizer.
// Blend of word and character estimates (~4 chars per token average).
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	chars := len(text)
	return (words + chars/4) / 2
}
