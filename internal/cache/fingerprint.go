package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint identifies an analysis result by everything that could
// change it: the segment text, the model, the prompt variant, and the
// format hint. Equal fingerprints mean interchangeable results.
type Fingerprint string

// NewFingerprint hashes the analysis inputs into a stable key. Fields
// are separated by NUL so distinct tuples can never collide by
// concatenation.
func NewFingerprint(text, model, variant, format string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(variant))
	h.Write([]byte{0})
	h.Write([]byte(format))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
