// Package sanitize cleans identifiers and exported text before they reach
// storage backends or spreadsheets.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxIdentifierLength is the longest collection name chromem accepts here.
	MaxIdentifierLength = 64

	// HashSuffixLength is len("_") plus eight hex digits.
	HashSuffixLength = 9

	// DefaultIdentifier replaces input that sanitizes to nothing.
	DefaultIdentifier = "default"
)

// Identifier lowercases s and keeps only [a-z0-9_], collapsing runs of
// underscores. Results longer than MaxIdentifierLength are truncated with a
// hash suffix so distinct inputs stay distinct.
//
//	"WA Use Tax" -> "wa_use_tax"
//	"RCW 82.12"  -> "rcw_82_12"
//	"" or "!!!"  -> "default"
func Identifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	out = strings.Trim(out, "_")

	if out == "" {
		return DefaultIdentifier
	}
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out)
	}
	return out
}

// truncateWithHash shortens s to MaxIdentifierLength as <prefix>_<8 hex>.
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(hash[:])[:8]
	prefix := strings.TrimRight(s[:MaxIdentifierLength-HashSuffixLength], "_")
	return prefix + suffix
}

// formulaPrefixes start a formula in Excel, Sheets or LibreOffice.
const formulaPrefixes = "=+-@\t\r"

// SpreadsheetCell neutralizes text that a spreadsheet would evaluate as a
// formula by prefixing a single quote. Vendor names and model output are
// untrusted, so every free-text export column goes through this.
func SpreadsheetCell(s string) string {
	if s == "" || !strings.ContainsRune(formulaPrefixes, rune(s[0])) {
		return s
	}
	return "'" + s
}
