package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/loomchat/loomchat/internal/adapter/outbound/memory"
	"github.com/loomchat/loomchat/internal/domain/session"
	"github.com/loomchat/loomchat/internal/domain/user"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	sessions := session.NewSessionService(memory.NewSessionStore(), session.Config{})
	issuer := session.NewTokenIssuer([]byte("test-secret"), 0)
	return NewAuthService(memory.NewUserStore(), sessions, issuer, NewStatsService(), discardLogger())
}

func TestSignupAndLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	u, pair, err := svc.Signup(ctx, SignupInput{
		Email:    "Alice@Example.com",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want lowercased", u.Email)
	}
	if u.Tier != user.TierFree || u.Role != user.RoleUser {
		t.Errorf("defaults = %s/%s, want free/user", u.Tier, u.Role)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.SessionID == "" {
		t.Error("Signup() returned incomplete token pair")
	}

	// Duplicate email.
	if _, _, err := svc.Signup(ctx, SignupInput{Email: "alice@example.com", Password: "different!"}); !errors.Is(err, user.ErrEmailTaken) {
		t.Errorf("Signup() duplicate error = %v, want ErrEmailTaken", err)
	}

	// Login with right and wrong passwords.
	if _, _, err := svc.Login(ctx, "alice@example.com", "correct horse"); err != nil {
		t.Errorf("Login() error = %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() unknown email error = %v, want ErrInvalidCredentials", err)
	}
}

func TestSignupValidatesInput(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input SignupInput
	}{
		{"malformed email", SignupInput{Email: "x", Password: "password1"}},
		{"missing email", SignupInput{Password: "password1"}},
		{"short password", SignupInput{Email: "a@b.com", Password: "short"}},
		{"oversized display name", SignupInput{Email: "a@b.com", Password: "password1", DisplayName: strings.Repeat("n", 101)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Signup(ctx, tt.input); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Signup() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, pair, err := svc.Signup(ctx, SignupInput{Email: "a@b.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	next, err := svc.Refresh(ctx, pair.SessionID, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("Refresh() did not rotate the refresh token")
	}

	// The old token is now invalid.
	if _, err := svc.Refresh(ctx, pair.SessionID, pair.RefreshToken); !errors.Is(err, session.ErrRefreshMismatch) {
		t.Errorf("Refresh() with stale token error = %v, want ErrRefreshMismatch", err)
	}
	// The rotated one still works.
	if _, err := svc.Refresh(ctx, pair.SessionID, next.RefreshToken); err != nil {
		t.Errorf("Refresh() with rotated token error = %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, pair, err := svc.Signup(ctx, SignupInput{Email: "a@b.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if err := svc.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.SessionID, pair.RefreshToken); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Refresh() after logout error = %v, want ErrSessionNotFound", err)
	}
	// Logging out twice is fine.
	if err := svc.Logout(ctx, pair.SessionID); err != nil {
		t.Errorf("Logout() second call error = %v", err)
	}
}

func TestAuthenticateEnforcesDisabled(t *testing.T) {
	users := memory.NewUserStore()
	sessions := session.NewSessionService(memory.NewSessionStore(), session.Config{})
	issuer := session.NewTokenIssuer([]byte("test-secret"), 0)
	svc := NewAuthService(users, sessions, issuer, NewStatsService(), discardLogger())
	ctx := context.Background()

	u, pair, err := svc.Signup(ctx, SignupInput{Email: "a@b.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	got, claims, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.ID != u.ID || claims.SessionID != pair.SessionID {
		t.Errorf("Authenticate() = user %q session %q, want %q/%q", got.ID, claims.SessionID, u.ID, pair.SessionID)
	}

	u.Disabled = true
	if err := users.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if _, _, err := svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("Authenticate() disabled error = %v, want ErrAccountDisabled", err)
	}
	if _, _, err := svc.Login(ctx, "a@b.com", "password1"); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("Login() disabled error = %v, want ErrAccountDisabled", err)
	}

	if _, _, err := svc.Authenticate(ctx, "not-a-token"); !errors.Is(err, session.ErrInvalidToken) {
		t.Errorf("Authenticate() garbage error = %v, want ErrInvalidToken", err)
	}
}
