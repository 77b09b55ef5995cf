package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/loomchat/loomchat/internal/domain/chat"
	"github.com/loomchat/loomchat/internal/domain/user"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "loomchat.db")
	s, err := Open(context.Background(), DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func seedUser(t *testing.T, s *Store, email string) *user.User {
	t.Helper()
	u := &user.User{
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		Tier:         user.TierFree,
		Role:         user.RoleUser,
	}
	if err := NewUserStore(s).CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func seedConversation(t *testing.T, s *Store, userID string) *chat.Conversation {
	t.Helper()
	c := &chat.Conversation{UserID: userID, Model: "openai/gpt-4o-mini"}
	if err := NewChatStore(s).CreateConversation(context.Background(), c); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	return c
}

func TestMigrateIdempotent(t *testing.T) {
	s := openTestStore(t)
	// Open already migrated; a second run must be a no-op.
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}
}

func TestUserStoreCRUD(t *testing.T) {
	s := openTestStore(t)
	us := NewUserStore(s)
	ctx := context.Background()

	u := seedUser(t, s, "Alice@Example.com")
	if u.ID == "" {
		t.Fatal("CreateUser() did not assign an ID")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want lowercased", u.Email)
	}

	got, err := us.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("GetUserByEmail() ID = %q, want %q", got.ID, u.ID)
	}

	if err := us.CreateUser(ctx, &user.User{Email: "alice@example.com", PasswordHash: "x", Tier: user.TierFree, Role: user.RoleUser}); !errors.Is(err, user.ErrEmailTaken) {
		t.Errorf("CreateUser() duplicate error = %v, want ErrEmailTaken", err)
	}

	got.Tier = user.TierPro
	got.Disabled = true
	if err := us.UpdateUser(ctx, got); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	got2, err := us.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got2.Tier != user.TierPro || !got2.Disabled {
		t.Errorf("after update: tier = %q disabled = %v, want pro/true", got2.Tier, got2.Disabled)
	}

	if _, err := us.GetUser(ctx, "missing"); !errors.Is(err, user.ErrUserNotFound) {
		t.Errorf("GetUser(missing) error = %v, want ErrUserNotFound", err)
	}
	if err := us.UpdateUser(ctx, &user.User{ID: "missing"}); !errors.Is(err, user.ErrUserNotFound) {
		t.Errorf("UpdateUser(missing) error = %v, want ErrUserNotFound", err)
	}

	users, err := us.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 {
		t.Errorf("ListUsers() len = %d, want 1", len(users))
	}
}

func TestConversationScoping(t *testing.T) {
	s := openTestStore(t)
	cs := NewChatStore(s)
	ctx := context.Background()

	alice := seedUser(t, s, "alice@example.com")
	bob := seedUser(t, s, "bob@example.com")
	conv := seedConversation(t, s, alice.ID)

	// Another user's conversation looks exactly like a missing one.
	if _, err := cs.GetConversation(ctx, bob.ID, conv.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Errorf("GetConversation() cross-user error = %v, want ErrConversationNotFound", err)
	}
	if err := cs.DeleteConversation(ctx, bob.ID, conv.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Errorf("DeleteConversation() cross-user error = %v, want ErrConversationNotFound", err)
	}
	if _, err := cs.ListMessages(ctx, bob.ID, conv.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Errorf("ListMessages() cross-user error = %v, want ErrConversationNotFound", err)
	}

	if err := cs.DeleteConversation(ctx, alice.ID, conv.ID); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if _, err := cs.GetConversation(ctx, alice.ID, conv.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Errorf("GetConversation() after delete error = %v, want ErrConversationNotFound", err)
	}
}

func TestAppendExchangeRecordsUsage(t *testing.T) {
	s := openTestStore(t)
	cs := NewChatStore(s)
	us := NewUsageStore(s)
	ctx := context.Background()

	u := seedUser(t, s, "alice@example.com")
	conv := seedConversation(t, s, u.ID)

	ex := &chat.Exchange{
		UserMessage: &chat.Message{Role: chat.RoleUser, Content: "What is the capital of France?"},
		AssistantMessage: &chat.Message{
			Role: chat.RoleAssistant, Content: "Paris.",
			Model: "openai/gpt-4o-mini", InputTokens: 12, OutputTokens: 3, CostMicro: 42,
		},
	}
	if err := cs.AppendExchange(ctx, u.ID, conv.ID, ex); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}

	msgs, err := cs.ListMessages(ctx, u.ID, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("ListMessages() len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser || msgs[1].Role != chat.RoleAssistant {
		t.Errorf("message order = %q,%q, want user,assistant", msgs[0].Role, msgs[1].Role)
	}

	got, err := cs.GetConversation(ctx, u.ID, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.Title != "What is the capital of France?" {
		t.Errorf("title = %q, want derived from first message", got.Title)
	}
	if got.TokensUsed != 15 {
		t.Errorf("TokensUsed = %d, want 15", got.TokensUsed)
	}
	if !got.UpdatedAt.After(conv.UpdatedAt) && !got.UpdatedAt.Equal(conv.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance: %v -> %v", conv.UpdatedAt, got.UpdatedAt)
	}

	from := time.Now().UTC().Add(-24 * time.Hour)
	to := time.Now().UTC().Add(24 * time.Hour)
	totals, err := us.GlobalTotals(ctx, from, to)
	if err != nil {
		t.Fatalf("GlobalTotals() error = %v", err)
	}
	want := struct{ req, in, out, cost int64 }{1, 12, 3, 42}
	if totals.Requests != want.req || totals.InputTokens != want.in || totals.OutputTokens != want.out || totals.CostMicro != want.cost {
		t.Errorf("GlobalTotals() = %+v, want %+v", totals, want)
	}

	daily, err := us.DailyTotals(ctx, u.ID, from, to)
	if err != nil {
		t.Fatalf("DailyTotals() error = %v", err)
	}
	if len(daily) != 1 || daily[0].Model != "openai/gpt-4o-mini" || daily[0].CostMicro != 42 {
		t.Errorf("DailyTotals() = %+v, want one gpt-4o-mini row at 42 micro", daily)
	}
}

func TestAppendExchangeErrorSkipsUsage(t *testing.T) {
	s := openTestStore(t)
	cs := NewChatStore(s)
	us := NewUsageStore(s)
	ctx := context.Background()

	u := seedUser(t, s, "alice@example.com")
	conv := seedConversation(t, s, u.ID)

	ex := &chat.Exchange{
		UserMessage:      &chat.Message{Role: chat.RoleUser, Content: "hi"},
		AssistantMessage: &chat.Message{Role: chat.RoleAssistant, Content: "upstream failed", IsError: true},
	}
	if err := cs.AppendExchange(ctx, u.ID, conv.ID, ex); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}

	totals, err := us.GlobalTotals(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GlobalTotals() error = %v", err)
	}
	if totals.Requests != 0 {
		t.Errorf("error exchange produced usage: %+v", totals)
	}

	got, err := cs.GetConversation(ctx, u.ID, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.TokensUsed != 0 {
		t.Errorf("TokensUsed = %d, want 0 for error exchange", got.TokensUsed)
	}
	// Both messages still persist so the client sees the failure.
	msgs, err := cs.ListMessages(ctx, u.ID, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 || !msgs[1].IsError {
		t.Errorf("messages = %d (error=%v), want 2 with error flag", len(msgs), len(msgs) == 2 && msgs[1].IsError)
	}
}

func TestAttachmentLinking(t *testing.T) {
	s := openTestStore(t)
	cs := NewChatStore(s)
	ctx := context.Background()

	alice := seedUser(t, s, "alice@example.com")
	bob := seedUser(t, s, "bob@example.com")
	conv := seedConversation(t, s, alice.ID)

	att := &chat.Attachment{UserID: alice.ID, ObjectKey: "attachments/x.png", MIMEType: "image/png", SizeBytes: 1024}
	if err := cs.CreateAttachment(ctx, att); err != nil {
		t.Fatalf("CreateAttachment() error = %v", err)
	}
	if _, err := cs.GetAttachment(ctx, bob.ID, att.ID); !errors.Is(err, chat.ErrAttachmentNotFound) {
		t.Errorf("GetAttachment() cross-user error = %v, want ErrAttachmentNotFound", err)
	}

	ex := &chat.Exchange{
		UserMessage:      &chat.Message{Role: chat.RoleUser, Content: "what is in this image?"},
		AssistantMessage: &chat.Message{Role: chat.RoleAssistant, Content: "a cat", Model: "openai/gpt-4o"},
		AttachmentIDs:    []string{att.ID},
	}
	if err := cs.AppendExchange(ctx, alice.ID, conv.ID, ex); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}

	msgs, err := cs.ListMessages(ctx, alice.ID, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].ID != att.ID {
		t.Errorf("user message attachments = %+v, want linked %s", msgs[0].Attachments, att.ID)
	}

	// An already-linked attachment cannot be linked again.
	ex2 := &chat.Exchange{
		UserMessage:      &chat.Message{Role: chat.RoleUser, Content: "again"},
		AssistantMessage: &chat.Message{Role: chat.RoleAssistant, Content: "no"},
		AttachmentIDs:    []string{att.ID},
	}
	if err := cs.AppendExchange(ctx, alice.ID, conv.ID, ex2); !errors.Is(err, chat.ErrAttachmentNotFound) {
		t.Errorf("AppendExchange() relink error = %v, want ErrAttachmentNotFound", err)
	}
}

func TestSyncChangedSince(t *testing.T) {
	s := openTestStore(t)
	cs := NewChatStore(s)
	ctx := context.Background()

	u := seedUser(t, s, "alice@example.com")
	conv := seedConversation(t, s, u.ID)

	entries, err := cs.SyncChangedSince(ctx, u.ID, time.Time{})
	if err != nil {
		t.Fatalf("SyncChangedSince() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != conv.ID {
		t.Fatalf("SyncChangedSince() = %+v, want one entry for %s", entries, conv.ID)
	}
	emptyHash := entries[0].Hash

	ex := &chat.Exchange{
		UserMessage:      &chat.Message{Role: chat.RoleUser, Content: "hello"},
		AssistantMessage: &chat.Message{Role: chat.RoleAssistant, Content: "hi", Model: "openai/gpt-4o-mini"},
	}
	if err := cs.AppendExchange(ctx, u.ID, conv.ID, ex); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}

	entries, err = cs.SyncChangedSince(ctx, u.ID, time.Time{})
	if err != nil {
		t.Fatalf("SyncChangedSince() error = %v", err)
	}
	if entries[0].Hash == emptyHash {
		t.Error("hash did not change after appending messages")
	}

	// A cursor at the latest UpdatedAt excludes everything at or before it.
	entries, err = cs.SyncChangedSince(ctx, u.ID, entries[0].UpdatedAt)
	if err != nil {
		t.Fatalf("SyncChangedSince() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("SyncChangedSince(cursor) = %+v, want empty", entries)
	}
}
