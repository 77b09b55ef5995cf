package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/loomchat/loomchat/internal/domain/chat"
	"github.com/loomchat/loomchat/internal/service"
)

// chatRequest is the /api/chat body: a SendInput plus the stream switch.
type chatRequest struct {
	service.SendInput
	Stream bool `json:"stream"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !req.Stream {
		res, err := h.chat.Send(r.Context(), u, req.SendInput)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		h.recordCompletion(res)
		writeJSON(w, http.StatusOK, res)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	res, err := h.chat.SendStream(r.Context(), u, req.SendInput, func(delta string) error {
		return writeSSE(w, flusher, "delta", map[string]string{"content": delta})
	})
	if err != nil {
		// Headers are gone; deliver the failure as a terminal event.
		_ = writeSSE(w, flusher, "error", map[string]any{
			"error":  err.Error(),
			"status": errStatus(err),
		})
		return
	}
	h.recordCompletion(res)
	if err := writeSSE(w, flusher, "done", res); err != nil {
		LoggerFromContext(r.Context()).Warn("client left before final chunk", "error", err)
	}
}

// writeSSE emits one server-sent event with a JSON payload.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (h *Handler) recordCompletion(res *service.SendResult) {
	m := res.AssistantMessage
	h.metrics.CompletionsTotal.WithLabelValues(m.Model, "ok").Inc()
	h.metrics.TokensTotal.WithLabelValues("input").Add(float64(m.InputTokens))
	h.metrics.TokensTotal.WithLabelValues("output").Add(float64(m.OutputTokens))
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"models": h.chat.Models(u.Tier)})
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	convs, err := h.chat.ListConversations(r.Context(), u.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	var input service.CreateConversationInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if input.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	conv, err := h.chat.CreateConversation(r.Context(), u, input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	conv, err := h.chat.GetConversation(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	if err := h.chat.DeleteConversation(r.Context(), u.ID, r.PathValue("id")); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	msgs, err := h.chat.ListMessages(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be epoch milliseconds")
			return
		}
		since = time.UnixMilli(ms).UTC()
	}

	res, err := h.chat.Sync(r.Context(), u.ID, since)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": res.Changed,
		"cursor":  res.Cursor.UnixMilli(),
	})
}
