package api

import (
	"net/http"
	"strconv"

	"github.com/loomchat/loomchat/internal/domain/user"
	"github.com/loomchat/loomchat/internal/service"
)

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// handleStats serves live process counters next to store-backed totals.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", service.DefaultUsageWindowDays)
	totals, err := h.analytics.GlobalTotals(r.Context(), days)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"process": h.stats.GetStats(),
		"usage":   totals,
		"days":    days,
	})
}

func (h *Handler) handleUsageModels(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", service.DefaultUsageWindowDays)
	rows, err := h.analytics.PerModel(r.Context(), days)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": rows, "days": days})
}

func (h *Handler) handleTopUsers(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", service.DefaultUsageWindowDays)
	n := queryInt(r, "limit", 10)
	rows, err := h.analytics.TopUsers(r.Context(), days, n)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": rows, "days": days})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]adminUserResponse, 0, len(users))
	for i := range users {
		out = append(out, toAdminUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

// adminUserResponse extends the public user view with moderation fields.
type adminUserResponse struct {
	userResponse
	RateLimitBypass bool `json:"rate_limit_bypass"`
	Disabled        bool `json:"disabled"`
}

func toAdminUserResponse(u *user.User) adminUserResponse {
	return adminUserResponse{
		userResponse:    toUserResponse(u),
		RateLimitBypass: u.RateLimitBypass,
		Disabled:        u.Disabled,
	}
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateUserInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	u, err := h.admin.UpdateUser(r.Context(), r.PathValue("id"), input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminUserResponse(u))
}
