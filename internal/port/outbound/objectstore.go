package outbound

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when an object doesn't exist in storage.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the outbound port for attachment blob storage.
// Adapters implement this for S3-compatible services and in-memory (test).
type ObjectStore interface {
	// Put stores an object under key with the given content type.
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error

	// PresignGet returns a time-limited URL for downloading an object.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
