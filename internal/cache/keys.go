package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// DigestKey normalizes an arbitrary string key to a fixed-width SHA-256
// hex digest. Every Store operation keys on digests, so callers may pass
// raw text of any length without blowing up the index.
func DigestKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// FieldKey builds a digest from a field mapping. Fields are serialized in
// sorted field-name order, so two mappings with the same fields and values
// always produce the same key regardless of construction order.
func FieldKey(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(fields[name])
	}
	return DigestKey(b.String())
}

// ContentHash returns the SHA-256 hex digest of text. It is the filename
// stem used by the disk layer of the embedding cache and the context hash
// component of query cache keys.
func ContentHash(text string) string {
	return DigestKey(text)
}
