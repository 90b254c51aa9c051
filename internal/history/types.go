// Package history holds the corpus of prior refund decisions: vendor records
// and keyword pattern records, plus the stores that persist them.
//
// Matchers only read from the stores. Records are written by bulk ingestion
// and by the human-correction feedback loop.
package history

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Common errors for history operations.
var (
	ErrVendorNotFound = errors.New("vendor not found")
	ErrInvalidRecord  = errors.New("invalid record")
	ErrStoreClosed    = errors.New("history store closed")
	ErrUnknownBackend = errors.New("unknown history backend")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// VendorRecord is the historical refund outcome for one vendor.
type VendorRecord struct {
	// VendorName is the canonical uppercase vendor identifier.
	VendorName string `json:"vendor_name"`

	// VendorKeywords are vendor-profile keywords of the name, computed at ingestion.
	VendorKeywords []string `json:"vendor_keywords,omitempty"`

	// DescriptionKeywords are the vendor's most frequent product description keywords.
	DescriptionKeywords []string `json:"description_keywords,omitempty"`

	// DescriptionKeywordCounts tallies description keywords seen in corrections.
	DescriptionKeywordCounts map[string]int `json:"description_keyword_counts,omitempty"`

	SampleCount  int     `json:"historical_sample_count"`
	SuccessRate  float64 `json:"historical_success_rate"`
	TypicalBasis string  `json:"typical_refund_basis,omitempty"`

	// BasisCounts tallies the refund basis cited on approved transactions.
	BasisCounts map[string]int `json:"basis_counts,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// PatternRecord is a recurring product-description pattern across vendors.
type PatternRecord struct {
	ID           string         `json:"id"`
	Keywords     []string       `json:"keywords"`
	SuccessRate  float64        `json:"success_rate"`
	TypicalBasis string         `json:"typical_basis,omitempty"`
	SampleCount  int            `json:"sample_count"`
	BasisCounts  map[string]int `json:"basis_counts,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NormalizeVendorName returns the canonical form used as the vendor key.
func NormalizeVendorName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Validate checks the record fields.
func (v *VendorRecord) Validate() error {
	if v.VendorName == "" {
		return fmt.Errorf("%w: vendor name cannot be empty", ErrInvalidRecord)
	}
	if v.VendorName != NormalizeVendorName(v.VendorName) {
		return fmt.Errorf("%w: vendor name %q is not normalized", ErrInvalidRecord, v.VendorName)
	}
	if v.SampleCount < 0 {
		return fmt.Errorf("%w: sample count cannot be negative", ErrInvalidRecord)
	}
	if v.SuccessRate < 0 || v.SuccessRate > 1 {
		return fmt.Errorf("%w: success rate must be between 0.0 and 1.0", ErrInvalidRecord)
	}
	return nil
}

// Validate checks the record fields.
func (p *PatternRecord) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: pattern ID cannot be empty", ErrInvalidRecord)
	}
	if len(p.Keywords) == 0 {
		return fmt.Errorf("%w: pattern keywords cannot be empty", ErrInvalidRecord)
	}
	if p.SampleCount < 0 {
		return fmt.Errorf("%w: sample count cannot be negative", ErrInvalidRecord)
	}
	if p.SuccessRate < 0 || p.SuccessRate > 1 {
		return fmt.Errorf("%w: success rate must be between 0.0 and 1.0", ErrInvalidRecord)
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (v VendorRecord) Clone() VendorRecord {
	v.VendorKeywords = cloneStrings(v.VendorKeywords)
	v.DescriptionKeywords = cloneStrings(v.DescriptionKeywords)
	v.BasisCounts = cloneCounts(v.BasisCounts)
	v.DescriptionKeywordCounts = cloneCounts(v.DescriptionKeywordCounts)
	return v
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p PatternRecord) Clone() PatternRecord {
	p.Keywords = cloneStrings(p.Keywords)
	p.BasisCounts = cloneCounts(p.BasisCounts)
	return p
}

// MostCommonBasis returns the basis with the highest count, ties broken
// alphabetically. Returns "" for no counts.
func MostCommonBasis(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := "", 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
