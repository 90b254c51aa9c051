package matcher

import (
	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/keywords"
)

// scorer selects the record with the largest keyword overlap.
// Ties go to the larger SampleCount, then the smaller key.
type scorer[R any] struct {
	keywords func(*R) []string
	samples  func(*R) int
	key      func(*R) string
}

var vendorScorer = scorer[history.VendorRecord]{
	keywords: func(v *history.VendorRecord) []string { return v.VendorKeywords },
	samples:  func(v *history.VendorRecord) int { return v.SampleCount },
	key:      func(v *history.VendorRecord) string { return v.VendorName },
}

var patternScorer = scorer[history.PatternRecord]{
	keywords: func(p *history.PatternRecord) []string { return p.Keywords },
	samples:  func(p *history.PatternRecord) int { return p.SampleCount },
	key:      func(p *history.PatternRecord) string { return p.ID },
}

// best scans records and returns a fuzzy match, or nil when no record shares
// at least minOverlap keywords with input.
func (s scorer[R]) best(input keywords.Set, records []R, minOverlap int) *MatchResult[R] {
	var (
		winner  *R
		overlap keywords.Set
	)
	for i := range records {
		rec := &records[i]
		kws := s.keywords(rec)
		if len(kws) == 0 {
			continue
		}
		o := input.Intersect(keywords.NewSet(kws...))
		if o.Len() < minOverlap {
			continue
		}
		if winner == nil || s.beats(rec, o.Len(), winner, overlap.Len()) {
			winner, overlap = rec, o
		}
	}
	if winner == nil {
		return nil
	}
	return &MatchResult[R]{
		Record:          *winner,
		Type:            MatchFuzzy,
		Score:           overlap.Len(),
		OverlapKeywords: overlap.Sorted(),
	}
}

// BestPattern returns the pattern sharing the most keywords with input, at
// least minOverlap of them, with the same tie-break as PatternMatcher.Match.
func BestPattern(input keywords.Set, patterns []history.PatternRecord, minOverlap int) *PatternMatch {
	return patternScorer.best(input, patterns, normalizeMinOverlap(minOverlap))
}

func (s scorer[R]) beats(a *R, aScore int, b *R, bScore int) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	if sa, sb := s.samples(a), s.samples(b); sa != sb {
		return sa > sb
	}
	return s.key(a) < s.key(b)
}

// normalizeMinOverlap treats thresholds below 1 as 1 so a fuzzy match always
// carries at least one overlapping keyword.
func normalizeMinOverlap(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
