package session

import (
	"errors"
	"testing"
	"time"

	"github.com/loomchat/loomchat/internal/domain/user"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Minute)
	u := &user.User{ID: "user-42", Tier: user.TierPro, Role: user.RoleAdmin}

	raw, err := issuer.Issue(u, "sess-1")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	claims, err := issuer.Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Errorf("Subject = %q, want user-42", claims.Subject)
	}
	if claims.Tier != user.TierPro {
		t.Errorf("Tier = %q, want pro", claims.Tier)
	}
	if claims.Role != user.RoleAdmin {
		t.Errorf("Role = %q, want admin", claims.Role)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", claims.SessionID)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), time.Minute)
	other := NewTokenIssuer([]byte("secret-b"), time.Minute)

	raw, err := issuer.Issue(&user.User{ID: "u", Tier: user.TierFree, Role: user.RoleUser}, "s")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := other.Validate(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() with wrong secret = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Minute)

	raw, err := issuer.Issue(&user.User{ID: "u", Tier: user.TierFree, Role: user.RoleUser}, "s")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := issuer.Validate(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() of expired token = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_Garbage(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Minute)
	if _, err := issuer.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() of garbage = %v, want ErrInvalidToken", err)
	}
}
