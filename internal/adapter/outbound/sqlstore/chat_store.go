package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomchat/loomchat/internal/domain/chat"
)

// ChatStore is the SQL implementation of chat.ChatStore.
type ChatStore struct {
	store *Store
}

var _ chat.ChatStore = (*ChatStore)(nil)

// NewChatStore creates a ChatStore backed by the given Store.
func NewChatStore(store *Store) *ChatStore {
	return &ChatStore{store: store}
}

const conversationColumns = `id, user_id, title, model, system_prompt, tokens_used, created_at, updated_at`

const messageColumns = `id, conversation_id, role, content, model, input_tokens, output_tokens, cost_micro, estimated_tokens, is_error, created_at`

// CreateConversation creates a new conversation, assigning an ID if empty.
func (s *ChatStore) CreateConversation(ctx context.Context, c *chat.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := s.store.db.ExecContext(ctx, s.store.bind(
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.UserID, c.Title, c.Model, c.SystemPrompt, c.TokensUsed,
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation scoped to its owner.
func (s *ChatStore) GetConversation(ctx context.Context, userID, id string) (*chat.Conversation, error) {
	row := s.store.db.QueryRowContext(ctx, s.store.bind(
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ? AND user_id = ?`), id, userID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return c, nil
}

// ListConversations retrieves a user's conversations, most recently updated first.
func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := s.store.db.QueryContext(ctx, s.store.bind(
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}
		convs = append(convs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return convs, nil
}

// DeleteConversation removes a conversation; its messages cascade.
func (s *ChatStore) DeleteConversation(ctx context.Context, userID, id string) error {
	res, err := s.store.db.ExecContext(ctx, s.store.bind(
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

// ListMessages retrieves a conversation's messages in order, attachments included.
func (s *ChatStore) ListMessages(ctx context.Context, userID, conversationID string) ([]chat.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.store.db.QueryContext(ctx, s.store.bind(
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY seq`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	index := make(map[string]int)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}
		index[m.ID] = len(msgs)
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	attRows, err := s.store.db.QueryContext(ctx, s.store.bind(
		`SELECT a.id, a.user_id, a.message_id, a.object_key, a.mime_type, a.size_bytes, a.created_at
		 FROM attachments a
		 JOIN messages m ON m.id = a.message_id
		 WHERE m.conversation_id = ?
		 ORDER BY a.created_at, a.id`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}
	defer attRows.Close()

	for attRows.Next() {
		a, err := scanAttachment(attRows)
		if err != nil {
			return nil, fmt.Errorf("listing attachments: %w", err)
		}
		if i, ok := index[a.MessageID]; ok {
			msgs[i].Attachments = append(msgs[i].Attachments, *a)
		}
	}
	if err := attRows.Err(); err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}
	return msgs, nil
}

// AppendExchange persists a user/assistant message pair in one transaction,
// linking attachments, bumping the conversation and folding usage into the
// daily rollup. Error-flagged assistant messages produce no usage row.
func (s *ChatStore) AppendExchange(ctx context.Context, userID, conversationID string, ex *chat.Exchange) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning exchange: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, s.store.bind(
		`SELECT title, tokens_used FROM conversations WHERE id = ? AND user_id = ?`), conversationID, userID)
	var title string
	var tokensUsed int64
	if err := row.Scan(&title, &tokensUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.ErrConversationNotFound
		}
		return fmt.Errorf("loading conversation: %w", err)
	}

	var seq int64
	row = tx.QueryRowContext(ctx, s.store.bind(
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = ?`), conversationID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("reading message sequence: %w", err)
	}

	now := time.Now().UTC()
	for _, m := range []*chat.Message{ex.UserMessage, ex.AssistantMessage} {
		if m == nil {
			continue
		}
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.ConversationID = conversationID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		seq++
		_, err := tx.ExecContext(ctx, s.store.bind(
			`INSERT INTO messages (id, conversation_id, seq, role, content, model, input_tokens, output_tokens, cost_micro, estimated_tokens, is_error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			m.ID, conversationID, seq, string(m.Role), m.Content, m.Model,
			m.InputTokens, m.OutputTokens, m.CostMicro,
			boolToInt(m.EstimatedTokens), boolToInt(m.IsError), m.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	if len(ex.AttachmentIDs) > 0 && ex.UserMessage != nil {
		for _, attID := range ex.AttachmentIDs {
			res, err := tx.ExecContext(ctx, s.store.bind(
				`UPDATE attachments SET message_id = ? WHERE id = ? AND user_id = ? AND message_id IS NULL`),
				ex.UserMessage.ID, attID, userID)
			if err != nil {
				return fmt.Errorf("linking attachment: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("linking attachment: %w", err)
			}
			if n == 0 {
				return chat.ErrAttachmentNotFound
			}
		}
	}

	exchangeTokens := int64(0)
	if am := ex.AssistantMessage; am != nil && !am.IsError {
		exchangeTokens = int64(am.InputTokens) + int64(am.OutputTokens)
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		_, err := tx.ExecContext(ctx, s.store.bind(
			`INSERT INTO usage_daily (user_id, day, model, requests, input_tokens, output_tokens, cost_micro)
			 VALUES (?, ?, ?, 1, ?, ?, ?)
			 ON CONFLICT (user_id, day, model) DO UPDATE SET
			     requests      = usage_daily.requests + 1,
			     input_tokens  = usage_daily.input_tokens + excluded.input_tokens,
			     output_tokens = usage_daily.output_tokens + excluded.output_tokens,
			     cost_micro    = usage_daily.cost_micro + excluded.cost_micro`),
			userID, day.UnixMilli(), am.Model,
			am.InputTokens, am.OutputTokens, am.CostMicro)
		if err != nil {
			return fmt.Errorf("recording usage: %w", err)
		}
	}

	if title == "" && ex.UserMessage != nil {
		title = chat.DeriveTitle(ex.UserMessage.Content)
	}
	_, err = tx.ExecContext(ctx, s.store.bind(
		`UPDATE conversations SET title = ?, tokens_used = ?, updated_at = ? WHERE id = ?`),
		title, tokensUsed+exchangeTokens, now.UnixMilli(), conversationID)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing exchange: %w", err)
	}
	return nil
}

// SyncChangedSince returns fingerprints for conversations updated strictly
// after the cursor, oldest first.
func (s *ChatStore) SyncChangedSince(ctx context.Context, userID string, since time.Time) ([]chat.SyncEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, s.store.bind(
		`SELECT id, updated_at FROM conversations
		 WHERE user_id = ? AND updated_at > ?
		 ORDER BY updated_at, id`), userID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("listing changed conversations: %w", err)
	}
	defer rows.Close()

	var entries []chat.SyncEntry
	for rows.Next() {
		var entry chat.SyncEntry
		var updatedMs int64
		if err := rows.Scan(&entry.ID, &updatedMs); err != nil {
			return nil, fmt.Errorf("scanning sync entry: %w", err)
		}
		entry.UpdatedAt = millisToTime(updatedMs)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing changed conversations: %w", err)
	}

	for i := range entries {
		msgRows, err := s.store.db.QueryContext(ctx, s.store.bind(
			`SELECT id, created_at FROM messages WHERE conversation_id = ? ORDER BY seq`), entries[i].ID)
		if err != nil {
			return nil, fmt.Errorf("fingerprinting conversation: %w", err)
		}
		var msgs []chat.Message
		for msgRows.Next() {
			var m chat.Message
			var createdMs int64
			if err := msgRows.Scan(&m.ID, &createdMs); err != nil {
				msgRows.Close()
				return nil, fmt.Errorf("fingerprinting conversation: %w", err)
			}
			m.CreatedAt = millisToTime(createdMs)
			msgs = append(msgs, m)
		}
		msgRows.Close()
		if err := msgRows.Err(); err != nil {
			return nil, fmt.Errorf("fingerprinting conversation: %w", err)
		}
		entries[i].Hash = chat.SyncHash(msgs)
	}
	return entries, nil
}

// CreateAttachment records an uploaded attachment, not yet linked to a message.
func (s *ChatStore) CreateAttachment(ctx context.Context, a *chat.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	messageID := sql.NullString{String: a.MessageID, Valid: a.MessageID != ""}
	_, err := s.store.db.ExecContext(ctx, s.store.bind(
		`INSERT INTO attachments (id, user_id, message_id, object_key, mime_type, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, messageID, a.ObjectKey, a.MIMEType, a.SizeBytes, a.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("creating attachment: %w", err)
	}
	return nil
}

// GetAttachment retrieves an attachment scoped to its owner.
func (s *ChatStore) GetAttachment(ctx context.Context, userID, id string) (*chat.Attachment, error) {
	row := s.store.db.QueryRowContext(ctx, s.store.bind(
		`SELECT id, user_id, message_id, object_key, mime_type, size_bytes, created_at
		 FROM attachments WHERE id = ? AND user_id = ?`), id, userID)
	a, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting attachment: %w", err)
	}
	return a, nil
}

func scanConversation(row rowScanner) (*chat.Conversation, error) {
	var c chat.Conversation
	var createdMs, updatedMs int64
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Model, &c.SystemPrompt, &c.TokensUsed,
		&createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = millisToTime(createdMs)
	c.UpdatedAt = millisToTime(updatedMs)
	return &c, nil
}

func scanMessage(row rowScanner) (*chat.Message, error) {
	var m chat.Message
	var role string
	var estimated, isError int
	var createdMs int64
	err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Model,
		&m.InputTokens, &m.OutputTokens, &m.CostMicro, &estimated, &isError, &createdMs)
	if err != nil {
		return nil, err
	}
	m.Role = chat.Role(role)
	m.EstimatedTokens = estimated != 0
	m.IsError = isError != 0
	m.CreatedAt = millisToTime(createdMs)
	return &m, nil
}

func scanAttachment(row rowScanner) (*chat.Attachment, error) {
	var a chat.Attachment
	var messageID sql.NullString
	var createdMs int64
	err := row.Scan(&a.ID, &a.UserID, &messageID, &a.ObjectKey, &a.MIMEType, &a.SizeBytes, &createdMs)
	if err != nil {
		return nil, err
	}
	a.MessageID = messageID.String
	a.CreatedAt = millisToTime(createdMs)
	return &a, nil
}
