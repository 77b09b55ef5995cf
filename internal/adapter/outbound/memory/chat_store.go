package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomchat/loomchat/internal/domain/chat"
	"github.com/loomchat/loomchat/internal/domain/usage"
)

// MemoryChatStore implements chat.ChatStore and the read side of
// usage.UsageStore with in-memory maps. Thread-safe. For development
// and testing only; the accounting semantics mirror the SQL store.
type MemoryChatStore struct {
	mu            sync.RWMutex
	conversations map[string]*chat.Conversation
	messages      map[string][]chat.Message // conversationID -> ordered messages
	attachments   map[string]*chat.Attachment
	emails        map[string]string // userID -> email, for TopUsers
	daily         map[dailyKey]*usage.DailyRow
}

type dailyKey struct {
	userID string
	day    string // UTC date, 2006-01-02
	model  string
}

// NewChatStore creates a new in-memory chat store.
func NewChatStore() *MemoryChatStore {
	return &MemoryChatStore{
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string][]chat.Message),
		attachments:   make(map[string]*chat.Attachment),
		emails:        make(map[string]string),
		daily:         make(map[dailyKey]*usage.DailyRow),
	}
}

// SetUserEmail records the email surfaced by TopUsers for a user.
func (s *MemoryChatStore) SetUserEmail(userID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[userID] = email
}

// CreateConversation creates a new conversation.
func (s *MemoryChatStore) CreateConversation(ctx context.Context, c *chat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	cp := *c
	s.conversations[c.ID] = &cp
	return nil
}

// GetConversation retrieves a conversation scoped to userID.
func (s *MemoryChatStore) GetConversation(ctx context.Context, userID, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(userID, id)
}

func (s *MemoryChatStore) getLocked(userID, id string) (*chat.Conversation, error) {
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return nil, chat.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

// ListConversations retrieves a user's conversations, most recently updated first.
func (s *MemoryChatStore) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Conversation, 0)
	for _, c := range s.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *MemoryChatStore) DeleteConversation(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return chat.ErrConversationNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

// ListMessages retrieves a conversation's messages in order.
func (s *MemoryChatStore) ListMessages(ctx context.Context, userID, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getLocked(userID, conversationID); err != nil {
		return nil, err
	}
	msgs := s.messages[conversationID]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendExchange persists a user/assistant message pair with accounting.
// Mirrors the SQL store: error-flagged assistant messages produce no
// usage row, and the conversation's UpdatedAt/TokensUsed advance.
func (s *MemoryChatStore) AppendExchange(ctx context.Context, userID, conversationID string, ex *chat.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok || c.UserID != userID {
		return chat.ErrConversationNotFound
	}

	now := time.Now().UTC()
	userMsg := *ex.UserMessage
	assistantMsg := *ex.AssistantMessage
	for _, m := range []*chat.Message{&userMsg, &assistantMsg} {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.ConversationID = conversationID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
	}

	for _, attID := range ex.AttachmentIDs {
		a, ok := s.attachments[attID]
		if !ok || a.UserID != userID {
			return chat.ErrAttachmentNotFound
		}
		a.MessageID = userMsg.ID
		userMsg.Attachments = append(userMsg.Attachments, *a)
	}

	s.messages[conversationID] = append(s.messages[conversationID], userMsg, assistantMsg)

	if c.Title == "" {
		c.Title = chat.DeriveTitle(userMsg.Content)
	}
	c.UpdatedAt = now
	c.TokensUsed += int64(assistantMsg.InputTokens + assistantMsg.OutputTokens)

	if !assistantMsg.IsError {
		s.recordUsageLocked(usage.Record{
			UserID:       userID,
			Model:        assistantMsg.Model,
			InputTokens:  assistantMsg.InputTokens,
			OutputTokens: assistantMsg.OutputTokens,
			CostMicro:    assistantMsg.CostMicro,
			At:           now,
		})
	}
	return nil
}

func (s *MemoryChatStore) recordUsageLocked(rec usage.Record) {
	day := rec.At.UTC().Truncate(24 * time.Hour)
	key := dailyKey{userID: rec.UserID, day: day.Format("2006-01-02"), model: rec.Model}
	row, ok := s.daily[key]
	if !ok {
		row = &usage.DailyRow{UserID: rec.UserID, Day: day, Model: rec.Model}
		s.daily[key] = row
	}
	row.Requests++
	row.InputTokens += int64(rec.InputTokens)
	row.OutputTokens += int64(rec.OutputTokens)
	row.CostMicro += rec.CostMicro
}

// SyncChangedSince returns sync entries for conversations updated after the cursor.
func (s *MemoryChatStore) SyncChangedSince(ctx context.Context, userID string, since time.Time) ([]chat.SyncEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.SyncEntry, 0)
	for _, c := range s.conversations {
		if c.UserID != userID || !c.UpdatedAt.After(since) {
			continue
		}
		out = append(out, chat.SyncEntry{
			ID:        c.ID,
			UpdatedAt: c.UpdatedAt,
			Hash:      chat.SyncHash(s.messages[c.ID]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

// CreateAttachment records an uploaded attachment.
func (s *MemoryChatStore) CreateAttachment(ctx context.Context, a *chat.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	s.attachments[a.ID] = &cp
	return nil
}

// GetAttachment retrieves an attachment scoped to userID.
func (s *MemoryChatStore) GetAttachment(ctx context.Context, userID, id string) (*chat.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attachments[id]
	if !ok || a.UserID != userID {
		return nil, chat.ErrAttachmentNotFound
	}
	cp := *a
	return &cp, nil
}

// --- usage.UsageStore ---

// DailyTotals returns a user's daily rows within [from, to), oldest first.
func (s *MemoryChatStore) DailyTotals(ctx context.Context, userID string, from, to time.Time) ([]usage.DailyRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]usage.DailyRow, 0)
	for _, row := range s.daily {
		if row.UserID == userID && !row.Day.Before(from) && row.Day.Before(to) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

// GlobalTotals sums usage across all users within [from, to).
func (s *MemoryChatStore) GlobalTotals(ctx context.Context, from, to time.Time) (usage.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t usage.Totals
	for _, row := range s.daily {
		if !row.Day.Before(from) && row.Day.Before(to) {
			t.Requests += row.Requests
			t.InputTokens += row.InputTokens
			t.OutputTokens += row.OutputTokens
			t.CostMicro += row.CostMicro
		}
	}
	return t, nil
}

// PerModel breaks down usage by model within [from, to), highest cost first.
func (s *MemoryChatStore) PerModel(ctx context.Context, from, to time.Time) ([]usage.ModelTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byModel := make(map[string]*usage.ModelTotals)
	for _, row := range s.daily {
		if row.Day.Before(from) || !row.Day.Before(to) {
			continue
		}
		mt, ok := byModel[row.Model]
		if !ok {
			mt = &usage.ModelTotals{Model: row.Model}
			byModel[row.Model] = mt
		}
		mt.Requests += row.Requests
		mt.InputTokens += row.InputTokens
		mt.OutputTokens += row.OutputTokens
		mt.CostMicro += row.CostMicro
	}

	out := make([]usage.ModelTotals, 0, len(byModel))
	for _, mt := range byModel {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CostMicro > out[j].CostMicro
	})
	return out, nil
}

// TopUsers returns the n highest-spending users within [from, to).
func (s *MemoryChatStore) TopUsers(ctx context.Context, from, to time.Time, n int) ([]usage.UserSpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[string]*usage.UserSpend)
	for _, row := range s.daily {
		if row.Day.Before(from) || !row.Day.Before(to) {
			continue
		}
		us, ok := byUser[row.UserID]
		if !ok {
			us = &usage.UserSpend{UserID: row.UserID, Email: s.emails[row.UserID]}
			byUser[row.UserID] = us
		}
		us.Requests += row.Requests
		us.InputTokens += row.InputTokens
		us.OutputTokens += row.OutputTokens
		us.CostMicro += row.CostMicro
	}

	out := make([]usage.UserSpend, 0, len(byUser))
	for _, us := range byUser {
		out = append(out, *us)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CostMicro > out[j].CostMicro
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Compile-time interface verification.
var (
	_ chat.ChatStore   = (*MemoryChatStore)(nil)
	_ usage.UsageStore = (*MemoryChatStore)(nil)
)
