package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns prefix + ":" + the first 16 hex chars of sha256(parts joined by NUL).
func HashKey(prefix string, parts ...[]byte) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write(p)
	}
	sum := h.Sum(nil)
	return prefix + ":" + hex.EncodeToString(sum[:8])
}
