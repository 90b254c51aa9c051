// Package matcher resolves free-text vendor names and product descriptions
// to historical refund records by keyword overlap.
//
// Matching is advisory. Every store failure is logged, counted and reported
// to the caller as "no match", indistinguishable from a novel vendor.
package matcher

import (
	"fmt"

	"github.com/fyrsmithlabs/refundmatch/internal/history"
)

// MatchType describes how a record was selected.
type MatchType int

const (
	// MatchNone means no record qualified.
	MatchNone MatchType = iota
	// MatchExact means the canonical vendor name was found as stored.
	MatchExact
	// MatchFuzzy means the record won on keyword overlap.
	MatchFuzzy
)

// String implements fmt.Stringer.
func (t MatchType) String() string {
	switch t {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t MatchType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *MatchType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*t = MatchNone
	case "exact":
		*t = MatchExact
	case "fuzzy":
		*t = MatchFuzzy
	default:
		return fmt.Errorf("unknown match type %q", text)
	}
	return nil
}

// MatchResult is a selected historical record and the evidence for it.
//
// For fuzzy matches OverlapKeywords is sorted and len(OverlapKeywords) == Score.
// Exact matches leave OverlapKeywords nil and report the keyword count of the
// input as Score. "No match" is a nil *MatchResult.
type MatchResult[R any] struct {
	Record          R         `json:"matched_record"`
	Type            MatchType `json:"match_type"`
	Score           int       `json:"match_score"`
	OverlapKeywords []string  `json:"overlap_keywords,omitempty"`
}

type (
	VendorMatch  = MatchResult[history.VendorRecord]
	PatternMatch = MatchResult[history.PatternRecord]
)
