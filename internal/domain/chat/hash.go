package chat

import (
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// SyncHash fingerprints a conversation's message set for incremental sync.
// Clients compare the hash against their local copy and skip fetching
// conversations whose fingerprint hasn't changed.
//
// The hash covers each message's ID and creation time in order, so both
// appends and deletions change it.
func SyncHash(messages []Message) string {
	h := xxhash.New()
	var buf [8]byte
	for i := range messages {
		_, _ = h.WriteString(messages[i].ID)
		binary.LittleEndian.PutUint64(buf[:], uint64(messages[i].CreatedAt.UnixMilli()))
		_, _ = h.Write(buf[:])
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
