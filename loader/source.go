package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash is the sha256 of normalized source text.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Short is the first eight hex digits, used in generated script names.
func (h Hash) Short() string { return h.String()[:8] }

// IsZero reports whether h was never set.
func (h Hash) IsZero() bool { return h == Hash{} }

// ParseHash decodes the hex form produced by String.
func ParseHash(s string) (Hash, bool) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// Normalize unifies line endings to LF and drops trailing whitespace, so
// sources that differ only in those respects share a cache entry.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimRight(text, " \t\n\f\v")
}

// HashSource normalizes text and returns it with its hash.
func HashSource(text string) (string, Hash) {
	norm := Normalize(text)
	return norm, sha256.Sum256([]byte(norm))
}

// scriptName is the class name given to anonymous sources.
func scriptName(h Hash) string { return "Script_" + h.Short() }
