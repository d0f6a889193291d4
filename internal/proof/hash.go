package proof

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewNonce returns a fresh 128-bit random nonce in hex.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashLink computes the proof hash that chains a step to its successor:
// SHA256(nonce || ':' || canonical spec). For a step with no challenge the
// canonical form of a nil spec is the empty string.
func HashLink(nonce string, spec *Spec) string {
	canonical := ""
	if spec != nil {
		canonical = spec.Canonical()
	}
	sum := sha256.Sum256([]byte(nonce + ":" + canonical))
	return hex.EncodeToString(sum[:])
}
