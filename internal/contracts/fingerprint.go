package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprinter is implemented by sources whose results depend on their own
// configuration. The fingerprint is part of shared cache keys, so processes
// configured differently never read each other's values.
type Fingerprinter interface {
	Fingerprint() string
}

// FingerprintOf returns v's fingerprint, or "" when v has none
func FingerprintOf(v interface{}) string {
	if f, ok := v.(Fingerprinter); ok {
		return f.Fingerprint()
	}
	return ""
}

// HashParts returns a short stable digest of parts
func HashParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:6])
}
