package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomchat/loomchat/internal/domain/chat"
	"github.com/loomchat/loomchat/internal/port/outbound"
)

// AttachmentService errors.
var (
	// ErrUploadTooLarge is returned when an upload exceeds the size cap.
	ErrUploadTooLarge = errors.New("upload too large")
	// ErrUnsupportedMIME is returned for a content type outside the allowlist.
	ErrUnsupportedMIME = errors.New("unsupported content type")
)

// DefaultPresignTTL is how long attachment download URLs stay valid.
const DefaultPresignTTL = 15 * time.Minute

// AttachmentConfig bounds uploads.
type AttachmentConfig struct {
	// MaxUploadBytes caps a single upload.
	MaxUploadBytes int64
	// AllowedMIMETypes is the content type allowlist, e.g. image/png.
	AllowedMIMETypes []string
	// PresignTTL is the download URL lifetime. Zero means DefaultPresignTTL.
	PresignTTL time.Duration
}

// AttachmentService validates uploads, stores blobs in object storage and
// records attachment rows for later linking to messages.
type AttachmentService struct {
	store   chat.ChatStore
	objects outbound.ObjectStore
	cfg     AttachmentConfig
	logger  *slog.Logger
}

// NewAttachmentService creates a new AttachmentService.
func NewAttachmentService(store chat.ChatStore, objects outbound.ObjectStore, cfg AttachmentConfig, logger *slog.Logger) *AttachmentService {
	if cfg.PresignTTL == 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}
	return &AttachmentService{
		store:   store,
		objects: objects,
		cfg:     cfg,
		logger:  logger,
	}
}

// MaxUploadBytes returns the configured upload cap.
func (s *AttachmentService) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

// Upload validates and stores one attachment for a user.
// Validation happens before any storage traffic.
func (s *AttachmentService) Upload(ctx context.Context, userID, contentType string, size int64, body io.Reader) (*chat.Attachment, error) {
	if s.cfg.MaxUploadBytes > 0 && size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrUploadTooLarge, size, s.cfg.MaxUploadBytes)
	}
	if !s.mimeAllowed(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMIME, contentType)
	}

	att := &chat.Attachment{
		ID:        uuid.New().String(),
		UserID:    userID,
		MIMEType:  contentType,
		SizeBytes: size,
	}
	att.ObjectKey = "attachments/" + userID + "/" + att.ID

	if err := s.objects.Put(ctx, att.ObjectKey, contentType, size, body); err != nil {
		return nil, fmt.Errorf("storing attachment: %w", err)
	}
	if err := s.store.CreateAttachment(ctx, att); err != nil {
		// The blob is orphaned; best-effort cleanup.
		if delErr := s.objects.Delete(ctx, att.ObjectKey); delErr != nil {
			s.logger.Warn("orphaned attachment blob", "key", att.ObjectKey, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info("attachment uploaded",
		"attachment_id", att.ID, "user_id", userID, "mime", contentType, "bytes", size)
	return att, nil
}

// DownloadURL returns a time-limited URL for an attachment the user owns.
func (s *AttachmentService) DownloadURL(ctx context.Context, userID, id string) (string, error) {
	att, err := s.store.GetAttachment(ctx, userID, id)
	if err != nil {
		return "", err
	}
	url, err := s.objects.PresignGet(ctx, att.ObjectKey, s.cfg.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("presigning attachment: %w", err)
	}
	return url, nil
}

func (s *AttachmentService) mimeAllowed(contentType string) bool {
	for _, m := range s.cfg.AllowedMIMETypes {
		if m == contentType {
			return true
		}
	}
	return false
}
