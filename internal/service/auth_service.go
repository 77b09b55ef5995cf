package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomchat/loomchat/internal/domain/session"
	"github.com/loomchat/loomchat/internal/domain/user"
)

// AuthService errors.
var (
	// ErrInvalidCredentials is returned for a wrong email or password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountDisabled is returned when a disabled account authenticates.
	ErrAccountDisabled = errors.New("account disabled")
)

// TokenPair is the credential set returned by signup, login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// AuthService implements signup, login, token refresh and logout on top of
// the user store and the session service.
type AuthService struct {
	users    user.UserStore
	sessions *session.SessionService
	issuer   *session.TokenIssuer
	stats    *StatsService
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(users user.UserStore, sessions *session.SessionService, issuer *session.TokenIssuer, stats *StatsService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		issuer:   issuer,
		stats:    stats,
		logger:   logger,
	}
}

// SignupInput holds the input for creating an account.
type SignupInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

// Signup creates an account and logs it in.
// Returns user.ErrEmailTaken when the email is already registered and
// ErrInvalidInput for a malformed email or short password.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*user.User, *TokenPair, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if err := validateInput(input); err != nil {
		return nil, nil, err
	}

	hash, err := user.HashPassword(input.Password)
	if err != nil {
		return nil, nil, err
	}

	u := &user.User{
		Email:        input.Email,
		DisplayName:  input.DisplayName,
		PasswordHash: hash,
		Tier:         user.TierFree,
		Role:         user.RoleUser,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, nil, err
	}

	pair, err := s.startSession(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user signed up", "user_id", u.ID)
	return u, pair, nil
}

// Login authenticates an email/password pair and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*user.User, *TokenPair, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			s.stats.RecordAuthFailure()
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := user.VerifyPassword(password, u.PasswordHash); err != nil {
		if errors.Is(err, user.ErrWrongPassword) {
			s.stats.RecordAuthFailure()
			s.logger.Warn("failed login attempt", "user_id", u.ID)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !u.CanAccess() {
		return nil, nil, ErrAccountDisabled
	}

	pair, err := s.startSession(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user logged in", "user_id", u.ID)
	return u, pair, nil
}

// Refresh rotates a session's refresh token and mints a new access token.
// Returns session.ErrSessionNotFound or session.ErrRefreshMismatch on
// invalid input, and ErrAccountDisabled when the account was disabled
// since login.
func (s *AuthService) Refresh(ctx context.Context, sessionID, refreshToken string) (*TokenPair, error) {
	sess, newToken, err := s.sessions.Refresh(ctx, sessionID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrRefreshMismatch) {
			s.stats.RecordAuthFailure()
		}
		return nil, err
	}

	u, err := s.users.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading session user: %w", err)
	}
	if !u.CanAccess() {
		_ = s.sessions.Delete(ctx, sess.ID)
		return nil, ErrAccountDisabled
	}

	access, err := s.issuer.Issue(u, sess.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: newToken,
		SessionID:    sess.ID,
		ExpiresIn:    int64(s.issuer.TTL().Seconds()),
	}, nil
}

// Logout terminates a session. Unknown sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Authenticate resolves a bearer access token to its user, enforcing the
// disabled flag. Used by the auth middleware on every request.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*user.User, *session.AccessClaims, error) {
	claims, err := s.issuer.Validate(rawToken)
	if err != nil {
		s.stats.RecordAuthFailure()
		return nil, nil, err
	}
	u, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, nil, session.ErrInvalidToken
		}
		return nil, nil, err
	}
	if !u.CanAccess() {
		return nil, nil, ErrAccountDisabled
	}
	return u, claims, nil
}

func (s *AuthService) startSession(ctx context.Context, u *user.User) (*TokenPair, error) {
	sess, refreshToken, err := s.sessions.Create(ctx, u)
	if err != nil {
		return nil, err
	}
	access, err := s.issuer.Issue(u, sess.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		SessionID:    sess.ID,
		ExpiresIn:    int64(s.issuer.TTL().Seconds()),
	}, nil
}
