// Package keywords normalizes vendor names and product descriptions into
// keyword sets used for overlap scoring against historical refund decisions.
//
// Extraction must be reproducible: keywords persisted at ingestion time are
// compared against keywords extracted at query time, so both sides go through
// the same profile.
package keywords

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Profile selects the normalization rules for a kind of input text.
type Profile int

const (
	// ProfileVendor normalizes vendor names: uppercase, corporate suffixes removed.
	ProfileVendor Profile = iota

	// ProfileDescription normalizes product descriptions: lowercase, punctuation
	// stripped, English stopwords removed.
	ProfileDescription
)

// String implements fmt.Stringer.
func (p Profile) String() string {
	switch p {
	case ProfileVendor:
		return "vendor"
	case ProfileDescription:
		return "description"
	default:
		return "unknown"
	}
}

// vendorStopwords are corporate suffixes and filler words that carry no
// identity signal in a vendor name.
var vendorStopwords = map[string]struct{}{
	"LLC": {}, "INC": {}, "CORP": {}, "CO": {}, "LTD": {}, "LP": {}, "LLP": {},
	"PLLC": {}, "PC": {}, "CORPORATION": {}, "COMPANY": {}, "INCORPORATED": {},
	"LIMITED": {}, "THE": {}, "AND": {}, "OF": {}, "&": {},
}

var descriptionStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "for": {},
	"of": {}, "to": {}, "in": {}, "on": {}, "at": {}, "by": {}, "from": {},
	"with": {}, "is": {}, "was": {}, "are": {}, "were": {},
}

const (
	// vendorMinTokenLen is the shortest vendor token kept (tokens of length <= 1 dropped).
	vendorMinTokenLen = 2

	// descriptionMinTokenLen is the shortest description token kept (length <= 2 dropped).
	descriptionMinTokenLen = 3
)

// Extract returns the keyword set of text under the given profile.
// Blank input yields an empty set.
func Extract(text string, profile Profile) Set {
	return NewSet(Tokens(text, profile)...)
}

// ExtractSlice returns the keywords of text sorted alphabetically. This is the
// form persisted on historical records.
func ExtractSlice(text string, profile Profile) []string {
	return Extract(text, profile).Sorted()
}

// Tokens returns the filtered tokens of text in input order. Duplicates are
// preserved; callers needing overlap semantics should use Extract.
func Tokens(text string, profile Profile) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	switch profile {
	case ProfileVendor:
		return vendorTokens(text)
	case ProfileDescription:
		return descriptionTokens(text)
	default:
		return nil
	}
}

func vendorTokens(text string) []string {
	normalized := strings.NewReplacer(",", " ", ".", " ").Replace(strings.ToUpper(text))

	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if _, stop := vendorStopwords[tok]; stop {
			continue
		}
		if utf8.RuneCountInString(tok) < vendorMinTokenLen {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func descriptionTokens(text string) []string {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, strings.ToLower(text))

	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if _, stop := descriptionStopwords[tok]; stop {
			continue
		}
		if utf8.RuneCountInString(tok) < descriptionMinTokenLen {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
