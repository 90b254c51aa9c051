// Package feedback folds human review corrections back into the historical
// store, so later matches see the corrected outcome.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/keywords"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidCorrection = errors.New("invalid correction")

const (
	// maxDescriptionKeywords bounds the keywords kept on a vendor record.
	maxDescriptionKeywords = 10

	// patternMinOverlap is the overlap needed to fold a correction into an
	// existing pattern instead of starting a new one.
	patternMinOverlap = 2
)

// Correction is a reviewer's final decision on one transaction.
type Correction struct {
	Vendor      string    `json:"vendor"`
	Description string    `json:"description"`
	Approved    bool      `json:"approved"`
	RefundBasis string    `json:"refund_basis"`
	Reviewer    string    `json:"reviewer,omitempty"`
	ReviewedAt  time.Time `json:"reviewed_at,omitempty"`
}

// Validate checks the correction fields.
func (c Correction) Validate() error {
	if strings.TrimSpace(c.Vendor) == "" {
		return fmt.Errorf("%w: vendor required", ErrInvalidCorrection)
	}
	if c.Approved && strings.TrimSpace(c.RefundBasis) == "" {
		return fmt.Errorf("%w: approved correction needs a refund basis", ErrInvalidCorrection)
	}
	return nil
}

// Outcome reports the records written for a correction.
type Outcome struct {
	Vendor  history.VendorRecord   `json:"vendor"`
	Pattern *history.PatternRecord `json:"pattern,omitempty"`
	// NewPattern is true when no existing pattern overlapped enough.
	NewPattern bool `json:"new_pattern"`
}

// Store is the read/write surface the learner needs.
type Store interface {
	history.VendorReader
	history.PatternReader
	history.Writer
}

// Learner applies corrections. Apply calls are serialized so concurrent
// corrections to one vendor do not lose updates.
type Learner struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
	mu     sync.Mutex
}

// NewLearner creates a Learner writing to store.
func NewLearner(store Store, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Apply updates the vendor record and the best-overlapping pattern record
// (or a new one) with the correction's outcome. Both records are computed
// before either is written, and the pattern is written first, so a failed
// read or pattern write leaves the store unchanged.
func (l *Learner) Apply(ctx context.Context, c Correction) (*Outcome, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := c.ReviewedAt
	if now.IsZero() {
		now = l.now()
	}
	descKeywords := keywords.Extract(c.Description, keywords.ProfileDescription)

	vendor, err := l.nextVendor(ctx, c, descKeywords, now)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Vendor: vendor}

	if descKeywords.Len() >= patternMinOverlap {
		pattern, created, err := l.nextPattern(ctx, c, descKeywords, now)
		if err != nil {
			return nil, err
		}
		if err := l.store.UpsertPattern(ctx, pattern); err != nil {
			return nil, fmt.Errorf("saving pattern %q: %w", pattern.ID, err)
		}
		out.Pattern = &pattern
		out.NewPattern = created
	}

	if err := l.store.UpsertVendor(ctx, vendor); err != nil {
		return nil, fmt.Errorf("saving vendor %q: %w", vendor.VendorName, err)
	}

	fields := []zap.Field{
		zap.String("vendor", vendor.VendorName),
		zap.Bool("approved", c.Approved),
		zap.Int("vendor_samples", vendor.SampleCount),
	}
	if out.Pattern != nil {
		fields = append(fields, zap.String("pattern", out.Pattern.ID), zap.Bool("new_pattern", out.NewPattern))
	}
	l.logger.Info("applied correction", fields...)
	return out, nil
}

func (l *Learner) nextVendor(ctx context.Context, c Correction, desc keywords.Set, now time.Time) (history.VendorRecord, error) {
	name := history.NormalizeVendorName(c.Vendor)

	var v history.VendorRecord
	existing, err := l.store.VendorByName(ctx, name)
	switch {
	case err == nil:
		v = existing.Clone()
	case errors.Is(err, history.ErrVendorNotFound):
		v = history.VendorRecord{VendorName: name}
	default:
		return history.VendorRecord{}, fmt.Errorf("loading vendor %q: %w", name, err)
	}

	if len(v.VendorKeywords) == 0 {
		v.VendorKeywords = keywords.ExtractSlice(name, keywords.ProfileVendor)
	}
	v.SuccessRate, v.SampleCount = record(v.SuccessRate, v.SampleCount, c.Approved)
	if c.Approved {
		v.BasisCounts = increment(v.BasisCounts, c.RefundBasis)
		v.TypicalBasis = history.MostCommonBasis(v.BasisCounts)
	}

	if desc.Len() > 0 {
		if v.DescriptionKeywordCounts == nil {
			v.DescriptionKeywordCounts = make(map[string]int)
			// Seed from keywords ingested before counts were kept.
			for _, k := range v.DescriptionKeywords {
				v.DescriptionKeywordCounts[k] = 1
			}
		}
		for k := range desc {
			v.DescriptionKeywordCounts[k]++
		}
		v.DescriptionKeywords = TopKeywords(v.DescriptionKeywordCounts, maxDescriptionKeywords)
	}
	v.UpdatedAt = now
	return v, nil
}

func (l *Learner) nextPattern(ctx context.Context, c Correction, desc keywords.Set, now time.Time) (history.PatternRecord, bool, error) {
	patterns, err := l.store.PatternsWithKeywords(ctx)
	if err != nil {
		return history.PatternRecord{}, false, fmt.Errorf("loading patterns: %w", err)
	}

	var p history.PatternRecord
	best := matcher.BestPattern(desc, patterns, patternMinOverlap)
	created := best == nil
	if created {
		p = history.PatternRecord{ID: l.newID(), Keywords: desc.Sorted()}
	} else {
		p = best.Record.Clone()
	}

	p.SuccessRate, p.SampleCount = record(p.SuccessRate, p.SampleCount, c.Approved)
	if c.Approved {
		p.BasisCounts = increment(p.BasisCounts, c.RefundBasis)
		p.TypicalBasis = history.MostCommonBasis(p.BasisCounts)
	}
	p.UpdatedAt = now
	return p, created, nil
}

// record folds one outcome into a running success rate.
func record(rate float64, n int, approved bool) (float64, int) {
	hit := 0.0
	if approved {
		hit = 1
	}
	return (rate*float64(n) + hit) / float64(n+1), n + 1
}

func increment(counts map[string]int, key string) map[string]int {
	if counts == nil {
		counts = make(map[string]int)
	}
	counts[key]++
	return counts
}

// TopKeywords returns up to n keywords by descending count, ties alphabetical.
func TopKeywords(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
