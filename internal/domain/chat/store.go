package chat

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for chat store operations.
var (
	// ErrConversationNotFound is returned when a conversation doesn't exist
	// or belongs to a different user. Callers must not distinguish the two.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound is returned when a message doesn't exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrAttachmentNotFound is returned when an attachment doesn't exist
	// or belongs to a different user.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// Exchange is one user turn and the assistant's reply, persisted atomically
// together with its usage accounting.
type Exchange struct {
	// UserMessage is the inbound message. Role must be RoleUser.
	UserMessage *Message
	// AssistantMessage is the completion result or an error record.
	AssistantMessage *Message
	// AttachmentIDs are pre-uploaded attachments to link to the user message.
	AttachmentIDs []string
}

// SyncEntry describes one changed conversation for incremental sync.
type SyncEntry struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
	// Hash fingerprints the conversation's message set so clients can
	// skip fetching conversations they already have.
	Hash string `json:"hash"`
}

// ChatStore provides conversation and message persistence.
// Every method scopes queries to userID; a conversation owned by another
// user is indistinguishable from a missing one.
// Implementations: SQL (prod), in-memory (test).
type ChatStore interface {
	// CreateConversation creates a new conversation.
	// The ID field is set by the implementation if empty.
	CreateConversation(ctx context.Context, c *Conversation) error

	// GetConversation retrieves a conversation by ID.
	// Returns ErrConversationNotFound if it doesn't exist or isn't owned by userID.
	GetConversation(ctx context.Context, userID, id string) (*Conversation, error)

	// ListConversations retrieves all conversations for a user, most
	// recently updated first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	// DeleteConversation removes a conversation and its messages.
	// Returns ErrConversationNotFound if it doesn't exist or isn't owned by userID.
	DeleteConversation(ctx context.Context, userID, id string) error

	// ListMessages retrieves all messages of a conversation in order,
	// with attachments populated.
	// Returns ErrConversationNotFound if the conversation isn't visible.
	ListMessages(ctx context.Context, userID, conversationID string) ([]Message, error)

	// AppendExchange atomically persists a user/assistant message pair,
	// links attachments, bumps the conversation's UpdatedAt and TokensUsed,
	// and records usage — all in one transaction. Error-flagged assistant
	// messages produce no usage row.
	// Returns ErrConversationNotFound if the conversation isn't visible.
	AppendExchange(ctx context.Context, userID, conversationID string, ex *Exchange) error

	// SyncChangedSince returns sync entries for conversations updated
	// strictly after the cursor, oldest first.
	SyncChangedSince(ctx context.Context, userID string, since time.Time) ([]SyncEntry, error)

	// CreateAttachment records an uploaded attachment, not yet linked
	// to a message.
	CreateAttachment(ctx context.Context, a *Attachment) error

	// GetAttachment retrieves an attachment by ID.
	// Returns ErrAttachmentNotFound if it doesn't exist or isn't owned by userID.
	GetAttachment(ctx context.Context, userID, id string) (*Attachment, error)
}
