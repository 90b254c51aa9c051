package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/keywords"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultVendorMinOverlap is the vendor fuzzy-phase threshold.
const DefaultVendorMinOverlap = 1

// VendorMatcher resolves vendor names to historical vendor records.
// Safe for concurrent use.
type VendorMatcher struct {
	store       history.VendorReader
	logger      *zap.Logger
	storeErrors prometheus.Counter
}

// NewVendorMatcher creates a vendor matcher reading from store.
// A nil logger disables logging.
func NewVendorMatcher(store history.VendorReader, logger *zap.Logger, opts ...Option) *VendorMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions("vendor", opts)
	return &VendorMatcher{
		store:       store,
		logger:      logger,
		storeErrors: o.storeErrors,
	}
}

// Match finds the historical record for name: an exact hit on the canonical
// name first, then the vendor sharing the most name keywords (at least
// minOverlap). Returns nil when nothing qualifies or the store fails.
func (m *VendorMatcher) Match(ctx context.Context, name string, minOverlap int) *VendorMatch {
	if strings.TrimSpace(name) == "" {
		return nil
	}

	match, err := m.match(ctx, name, normalizeMinOverlap(minOverlap))
	if err != nil {
		m.storeErrors.Inc()
		m.logger.Warn("vendor history unavailable, continuing without precedent",
			zap.String("vendor", name),
			zap.Error(err))
		match = nil
	}
	observe("vendor", match)
	return match
}

func (m *VendorMatcher) match(ctx context.Context, name string, minOverlap int) (*VendorMatch, error) {
	canonical := history.NormalizeVendorName(name)
	input := keywords.Extract(name, keywords.ProfileVendor)

	rec, err := m.store.VendorByName(ctx, canonical)
	switch {
	case err == nil && rec != nil:
		return &VendorMatch{Record: *rec, Type: MatchExact, Score: input.Len()}, nil
	case err != nil && !errors.Is(err, history.ErrVendorNotFound):
		return nil, fmt.Errorf("exact lookup %q: %w", canonical, err)
	}

	if input.Len() < minOverlap {
		return nil, nil
	}

	vendors, err := m.store.VendorsWithKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}

	match := vendorScorer.best(input, vendors, minOverlap)
	if match != nil {
		m.logger.Debug("fuzzy vendor match",
			zap.String("vendor", canonical),
			zap.String("matched", match.Record.VendorName),
			zap.Strings("overlap", match.OverlapKeywords),
			zap.Int("candidates", len(vendors)))
	}
	return match, nil
}
