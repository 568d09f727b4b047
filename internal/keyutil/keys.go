package keyutil

import (
	"encoding/base64"
	"hash"
	"strings"
)

// Sanitize strips every byte outside [A-Za-z0-9_.] from s. Namespaces are
// embedded into storage keys, so control characters and separators must never
// survive into them.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '.':
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ShortDigest finishes h and returns the first n characters of the
// base64-encoded digest. n larger than the encoded digest returns the whole
// encoding.
func ShortDigest(h hash.Hash, n int) string {
	enc := base64.StdEncoding.EncodeToString(h.Sum(nil))
	if n > 0 && n < len(enc) {
		return enc[:n]
	}
	return enc
}

// HexDigest finishes h and returns the full lowercase hex digest.
func HexDigest(h hash.Hash) string {
	const hexdigits = "0123456789abcdef"
	sum := h.Sum(nil)
	out := make([]byte, 0, len(sum)*2)
	for _, b := range sum {
		out = append(out, hexdigits[b>>4], hexdigits[b&0xf])
	}
	return string(out)
}
