package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/keywords"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultPatternMinOverlap is the pattern matching threshold.
	DefaultPatternMinOverlap = 2

	DefaultHighConfidenceRate    = 0.80
	DefaultHighConfidenceSamples = 10
)

// PatternMatcher resolves product descriptions to keyword pattern records.
// Safe for concurrent use.
type PatternMatcher struct {
	store       history.PatternReader
	logger      *zap.Logger
	storeErrors prometheus.Counter
}

// NewPatternMatcher creates a pattern matcher reading from store.
// A nil logger disables logging.
func NewPatternMatcher(store history.PatternReader, logger *zap.Logger, opts ...Option) *PatternMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions("pattern", opts)
	return &PatternMatcher{
		store:       store,
		logger:      logger,
		storeErrors: o.storeErrors,
	}
}

// Match returns the pattern sharing the most description keywords with
// description, at least minOverlap of them. Descriptions with fewer than
// minOverlap keywords return nil without reading the store.
func (m *PatternMatcher) Match(ctx context.Context, description string, minOverlap int) *PatternMatch {
	minOverlap = normalizeMinOverlap(minOverlap)
	input := keywords.Extract(description, keywords.ProfileDescription)

	match, err := m.matchSet(ctx, input, minOverlap)
	if err != nil {
		m.failed(err, zap.Strings("keywords", input.Sorted()))
		match = nil
	}
	observe("pattern", match)
	return match
}

// MatchVendorKeywords scores patterns against the vendor's stored description
// keywords rather than a single line item. Unknown vendors return nil.
func (m *PatternMatcher) MatchVendorKeywords(ctx context.Context, vendorName string, minOverlap int) *PatternMatch {
	match := m.matchVendorKeywords(ctx, vendorName, minOverlap)
	observe("pattern", match)
	return match
}

func (m *PatternMatcher) matchVendorKeywords(ctx context.Context, vendorName string, minOverlap int) *PatternMatch {
	if strings.TrimSpace(vendorName) == "" {
		return nil
	}
	minOverlap = normalizeMinOverlap(minOverlap)
	canonical := history.NormalizeVendorName(vendorName)

	kws, err := m.store.VendorDescriptionKeywords(ctx, canonical)
	if errors.Is(err, history.ErrVendorNotFound) {
		return nil
	}
	if err != nil {
		m.failed(fmt.Errorf("vendor description keywords %q: %w", canonical, err), zap.String("vendor", canonical))
		return nil
	}

	match, err := m.matchSet(ctx, keywords.NewSet(kws...), minOverlap)
	if err != nil {
		m.failed(err, zap.String("vendor", canonical))
		return nil
	}
	return match
}

func (m *PatternMatcher) matchSet(ctx context.Context, input keywords.Set, minOverlap int) (*PatternMatch, error) {
	if input.Len() < minOverlap {
		return nil, nil
	}
	patterns, err := m.store.PatternsWithKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	return patternScorer.best(input, patterns, minOverlap), nil
}

func (m *PatternMatcher) failed(err error, fields ...zap.Field) {
	m.storeErrors.Inc()
	m.logger.Warn("pattern history unavailable, continuing without precedent",
		append(fields, zap.Error(err))...)
}

// SuggestRefundBasis returns the typical refund basis of the pattern matching
// description at the default threshold.
func (m *PatternMatcher) SuggestRefundBasis(ctx context.Context, description string) (string, bool) {
	match := m.Match(ctx, description, DefaultPatternMinOverlap)
	if match == nil || match.Record.TypicalBasis == "" {
		return "", false
	}
	return match.Record.TypicalBasis, true
}

// HighConfidencePatterns returns patterns with at least minSuccessRate and
// minSamples, highest success rate first. Unlike Match, store errors are
// returned.
func (m *PatternMatcher) HighConfidencePatterns(ctx context.Context, minSuccessRate float64, minSamples int) ([]history.PatternRecord, error) {
	patterns, err := m.store.PatternsWithKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}

	out := make([]history.PatternRecord, 0, len(patterns))
	for _, p := range patterns {
		if p.SuccessRate >= minSuccessRate && p.SampleCount >= minSamples {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		if out[i].SampleCount != out[j].SampleCount {
			return out[i].SampleCount > out[j].SampleCount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
