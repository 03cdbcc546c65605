package utils

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const roomIDLength = 8

// GenerateRoomID returns a short upper-case room code taken from a random UUID,
// e.g. "3F2A9C1B".
func GenerateRoomID() string {
	return strings.ToUpper(uuid.NewString()[:roomIDLength])
}

// GenerateClientID returns an opaque client identifier.
func GenerateClientID() string {
	return uuid.NewString()
}

// HashKey returns a hex blake2b-256 digest of key. Used so client ids are
// never written to disk in clear.
func HashKey(key string) string {
	if key == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MaskID shortens an identifier for log output.
func MaskID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
