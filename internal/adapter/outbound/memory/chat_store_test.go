package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loomchat/loomchat/internal/domain/chat"
)

func seedConversation(t *testing.T, store *MemoryChatStore, userID string) *chat.Conversation {
	t.Helper()
	c := &chat.Conversation{UserID: userID, Model: "openai/gpt-4o-mini"}
	if err := store.CreateConversation(context.Background(), c); err != nil {
		t.Fatalf("CreateConversation() error: %v", err)
	}
	return c
}

func exchange(content string, isError bool) *chat.Exchange {
	return &chat.Exchange{
		UserMessage: &chat.Message{Role: chat.RoleUser, Content: content},
		AssistantMessage: &chat.Message{
			Role:         chat.RoleAssistant,
			Content:      "answer",
			Model:        "openai/gpt-4o-mini",
			InputTokens:  100,
			OutputTokens: 50,
			CostMicro:    45,
			IsError:      isError,
		},
	}
}

func TestChatStore_UserScoping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewChatStore()
	c := seedConversation(t, store, "alice")

	// The owner sees it.
	if _, err := store.GetConversation(ctx, "alice", c.ID); err != nil {
		t.Fatalf("owner GetConversation() error: %v", err)
	}

	// Another user gets not-found, indistinguishable from missing.
	if _, err := store.GetConversation(ctx, "bob", c.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Errorf("cross-user GetConversation() = %v, want ErrConversationNotFound", err)
	}
	if err := store.DeleteConversation(ctx, "bob", c.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Errorf("cross-user DeleteConversation() = %v, want ErrConversationNotFound", err)
	}
	if _, err := store.ListMessages(ctx, "bob", c.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Errorf("cross-user ListMessages() = %v, want ErrConversationNotFound", err)
	}
}

func TestChatStore_AppendExchange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewChatStore()
	c := seedConversation(t, store, "alice")

	if err := store.AppendExchange(ctx, "alice", c.ID, exchange("What is Go?", false)); err != nil {
		t.Fatalf("AppendExchange() error: %v", err)
	}

	msgs, err := store.ListMessages(ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser || msgs[1].Role != chat.RoleAssistant {
		t.Error("messages should be stored user first, assistant second")
	}

	got, _ := store.GetConversation(ctx, "alice", c.ID)
	if got.Title != "What is Go?" {
		t.Errorf("Title = %q, want derived from first user message", got.Title)
	}
	if got.TokensUsed != 150 {
		t.Errorf("TokensUsed = %d, want 150", got.TokensUsed)
	}

	// Usage was recorded.
	totals, err := store.GlobalTotals(ctx, time.Now().UTC().Add(-24*time.Hour), time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GlobalTotals() error: %v", err)
	}
	if totals.Requests != 1 || totals.InputTokens != 100 || totals.OutputTokens != 50 || totals.CostMicro != 45 {
		t.Errorf("GlobalTotals = %+v, want 1 request / 100 in / 50 out / 45 micro", totals)
	}
}

func TestChatStore_ErrorMessagesExcludedFromUsage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewChatStore()
	c := seedConversation(t, store, "alice")

	if err := store.AppendExchange(ctx, "alice", c.ID, exchange("hi", true)); err != nil {
		t.Fatalf("AppendExchange() error: %v", err)
	}

	totals, err := store.GlobalTotals(ctx, time.Now().UTC().Add(-24*time.Hour), time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GlobalTotals() error: %v", err)
	}
	if totals.Requests != 0 {
		t.Errorf("error exchange should not create usage rows, got %+v", totals)
	}

	// But the messages are still persisted.
	msgs, _ := store.ListMessages(ctx, "alice", c.ID)
	if len(msgs) != 2 {
		t.Errorf("len(messages) = %d, want 2 (error message still stored)", len(msgs))
	}
}

func TestChatStore_SyncChangedSince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewChatStore()
	c1 := seedConversation(t, store, "alice")

	cursor := time.Now().UTC()
	time.Sleep(2 * time.Millisecond)

	c2 := seedConversation(t, store, "alice")
	if err := store.AppendExchange(ctx, "alice", c2.ID, exchange("newer", false)); err != nil {
		t.Fatalf("AppendExchange() error: %v", err)
	}

	entries, err := store.SyncChangedSince(ctx, "alice", cursor)
	if err != nil {
		t.Fatalf("SyncChangedSince() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (only c2 changed after cursor)", len(entries))
	}
	if entries[0].ID != c2.ID {
		t.Errorf("entry ID = %q, want %q", entries[0].ID, c2.ID)
	}
	if entries[0].Hash == "" {
		t.Error("sync entry should carry a content hash")
	}

	// Appending to c1 makes it show up with a fresh hash.
	if err := store.AppendExchange(ctx, "alice", c1.ID, exchange("update old", false)); err != nil {
		t.Fatalf("AppendExchange() error: %v", err)
	}
	entries, _ = store.SyncChangedSince(ctx, "alice", cursor)
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2 after touching c1", len(entries))
	}
}

func TestChatStore_AttachmentLinking(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewChatStore()
	c := seedConversation(t, store, "alice")

	att := &chat.Attachment{UserID: "alice", ObjectKey: "alice/img.png", MIMEType: "image/png", SizeBytes: 1024}
	if err := store.CreateAttachment(ctx, att); err != nil {
		t.Fatalf("CreateAttachment() error: %v", err)
	}

	ex := exchange("look at this", false)
	ex.AttachmentIDs = []string{att.ID}
	if err := store.AppendExchange(ctx, "alice", c.ID, ex); err != nil {
		t.Fatalf("AppendExchange() error: %v", err)
	}

	msgs, _ := store.ListMessages(ctx, "alice", c.ID)
	if len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].ObjectKey != "alice/img.png" {
		t.Errorf("user message attachments = %+v, want the linked upload", msgs[0].Attachments)
	}

	// Linking someone else's attachment fails.
	other := &chat.Attachment{UserID: "bob", ObjectKey: "bob/img.png", MIMEType: "image/png", SizeBytes: 10}
	_ = store.CreateAttachment(ctx, other)
	ex2 := exchange("steal", false)
	ex2.AttachmentIDs = []string{other.ID}
	if err := store.AppendExchange(ctx, "alice", c.ID, ex2); !errors.Is(err, chat.ErrAttachmentNotFound) {
		t.Errorf("linking foreign attachment = %v, want ErrAttachmentNotFound", err)
	}
}

func TestChatStore_TopUsersAndPerModel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewChatStore()
	store.SetUserEmail("alice", "alice@example.com")
	store.SetUserEmail("bob", "bob@example.com")

	ca := seedConversation(t, store, "alice")
	cb := seedConversation(t, store, "bob")

	// Alice spends twice, Bob once.
	_ = store.AppendExchange(ctx, "alice", ca.ID, exchange("1", false))
	_ = store.AppendExchange(ctx, "alice", ca.ID, exchange("2", false))
	_ = store.AppendExchange(ctx, "bob", cb.ID, exchange("3", false))

	from := time.Now().UTC().Add(-24 * time.Hour)
	to := time.Now().UTC().Add(24 * time.Hour)

	top, err := store.TopUsers(ctx, from, to, 10)
	if err != nil {
		t.Fatalf("TopUsers() error: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].UserID != "alice" || top[0].Email != "alice@example.com" {
		t.Errorf("top spender = %+v, want alice", top[0])
	}

	models, err := store.PerModel(ctx, from, to)
	if err != nil {
		t.Fatalf("PerModel() error: %v", err)
	}
	if len(models) != 1 || models[0].Model != "openai/gpt-4o-mini" || models[0].Requests != 3 {
		t.Errorf("PerModel = %+v, want one model with 3 requests", models)
	}
}
