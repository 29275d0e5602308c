package misc

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenerateChecksum derives the x-cursor-checksum header value from the
// access token: two hex SHA-256 digests joined by a slash, the second
// salted with the client name.
func GenerateChecksum(token string) string {
	hash1 := sha256.Sum256([]byte(token))
	hash2 := sha256.Sum256([]byte(token + "cursor"))
	return hex.EncodeToString(hash1[:]) + "/" + hex.EncodeToString(hash2[:])
}
