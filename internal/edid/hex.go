package edid

import (
	"encoding/hex"
	"strings"
)

// FormatHex renders bytes as lowercase hex, 16 space-separated bytes per
// line with no trailing newline.
func FormatHex(b []byte) string {
	lines := make([]string, 0, (len(b)+15)/16)
	for i := 0; i < len(b); i += 16 {
		chunk := b[i:min(i+16, len(b))]
		parts := make([]string, len(chunk))
		for j, c := range chunk {
			parts[j] = hex.EncodeToString([]byte{c})
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n")
}

// ParseHex accepts the FormatHex layout, or any whitespace separated hex.
func ParseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}
