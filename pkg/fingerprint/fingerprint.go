package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate returns the SHA256 of the canonical JSON form of data
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions fingerprints data while skipping the named top-level keys,
// typically timestamps that change on every write.
func GenerateWithExclusions(data map[string]any, exclude map[string]bool) string {
	var b strings.Builder
	writeMap(&b, data, exclude)
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

func writeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		writeMap(b, t, nil)
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, item)
		}
		b.WriteByte(']')
	case []string:
		items := make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
		writeValue(b, items)
	default:
		raw, _ := json.Marshal(t)
		b.Write(raw)
	}
}

func writeMap(b *strings.Builder, m map[string]any, exclude map[string]bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !exclude[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		b.Write(key)
		b.WriteByte(':')
		writeValue(b, m[k])
	}
	b.WriteByte('}')
}
