package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/loomchat/loomchat/internal/service"
)

type attachmentResponse struct {
	ID        string    `json:"id"`
	MIMEType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// handleUpload accepts a multipart upload with a single "file" part.
// MIME and size validation happens before any object storage traffic.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())

	maxBytes := h.attachments.MaxUploadBytes()
	// Headroom for the multipart framing around the capped file part.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart upload with a file part is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	att, err := h.attachments.Upload(r.Context(), u.ID, contentType, header.Size, file)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.metrics.UploadBytes.Add(float64(att.SizeBytes))

	writeJSON(w, http.StatusCreated, attachmentResponse{
		ID:        att.ID,
		MIMEType:  att.MIMEType,
		SizeBytes: att.SizeBytes,
		CreatedAt: att.CreatedAt,
	})
}

// handleGetAttachment redirects to a time-limited download URL.
func (h *Handler) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())

	url, err := h.attachments.DownloadURL(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) handleMyUsage(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())

	days := queryInt(r, "days", service.DefaultUsageWindowDays)
	report, err := h.analytics.UserUsage(r.Context(), u.ID, days)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
