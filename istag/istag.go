// Package istag computes default ISTag values for ICAP responses: an
// opaque cache-validator token identifying the current service
// configuration, per RFC 3507 §4.7.
package istag

import (
	"encoding/base64"

	"golang.org/x/crypto/blake2b"
)

// maxLen is the longest ISTag RFC 3507 permits (32 characters, quoted).
const maxLen = 32

// Default derives a stable ISTag from seed — typically a representation
// of the running service's configuration (version string, handler set,
// config fingerprint) — by hashing it with BLAKE2b-256 and
// base64-encoding the digest, then truncating to maxLen bytes without
// splitting the (ASCII-only, so byte-safe) base64 alphabet.
func Default(seed string) string {
	sum := blake2b.Sum256([]byte(seed))
	encoded := base64.RawURLEncoding.EncodeToString(sum[:])
	if len(encoded) > maxLen {
		encoded = encoded[:maxLen]
	}
	return encoded
}

// Truncate shortens s to at most maxBytes bytes without splitting a
// UTF-8 rune, for ISTag values supplied by a hook rather than derived
// with Default.
func Truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	n := maxBytes
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(c byte) bool { return c&0xC0 != 0x80 }
