// Package uuid generates time-ordered identifiers for model primary keys.
package uuid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	googleuuid "github.com/google/uuid"
)

// New returns a UUIDv7 string. The leading 48 bits carry the Unix
// millisecond timestamp, so IDs sort by creation time, which keeps
// primary-key inserts append-only.
func New() string {
	var uuid [16]byte

	timestamp := uint64(time.Now().UnixMilli())

	// Timestamp occupies the first 48 bits.
	binary.BigEndian.PutUint64(uuid[0:8], timestamp<<16)

	if _, err := rand.Read(uuid[6:]); err != nil {
		// No randomness, no v7. A v4 still satisfies uniqueness.
		return googleuuid.New().String()
	}

	// Version nibble 0111, variant bits 10.
	uuid[6] = (uuid[6] & 0x0f) | 0x70
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return formatUUID(uuid)
}

func formatUUID(uuid [16]byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.BigEndian.Uint32(uuid[0:4]),
		binary.BigEndian.Uint16(uuid[4:6]),
		binary.BigEndian.Uint16(uuid[6:8]),
		binary.BigEndian.Uint16(uuid[8:10]),
		uuid[10:16],
	)
}

// Parse normalizes a UUID string, rejecting malformed input.
func Parse(s string) (string, error) {
	parsed, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// IsValid reports whether s parses as a UUID.
func IsValid(s string) bool {
	_, err := googleuuid.Parse(s)
	return err == nil
}
