package api

import (
	"net/http"
	"time"

	"github.com/loomchat/loomchat/internal/domain/user"
	"github.com/loomchat/loomchat/internal/service"
)

// userResponse is the public view of an account.
type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Tier        user.Tier `json:"tier"`
	Role        user.Role `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Tier:        u.Tier,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

type authResponse struct {
	User   userResponse       `json:"user"`
	Tokens *service.TokenPair `json:"tokens"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var input service.SignupInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if input.Email == "" || input.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	u, tokens, err := h.auth.Signup(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: toUserResponse(u), Tokens: tokens})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	u, tokens, err := h.auth.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(u), Tokens: tokens})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var input struct {
		SessionID    string `json:"session_id"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), input.SessionID, input.RefreshToken)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*service.TokenPair{"tokens": tokens})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, _ := bearerToken(r)
	_, claims, err := h.auth.Authenticate(r.Context(), raw)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.auth.Logout(r.Context(), claims.SessionID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
