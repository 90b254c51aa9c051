package precedent

import (
	"context"

	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("refundmatch.precedent")

// VendorLookup is satisfied by *matcher.VendorMatcher.
type VendorLookup interface {
	Match(ctx context.Context, name string, minOverlap int) *matcher.VendorMatch
}

// PatternLookup is satisfied by *matcher.PatternMatcher.
type PatternLookup interface {
	Match(ctx context.Context, description string, minOverlap int) *matcher.PatternMatch
}

// Builder runs both matchers and assembles a Precedent.
type Builder struct {
	vendors           VendorLookup
	patterns          PatternLookup
	vendorMinOverlap  int
	patternMinOverlap int
	logger            *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithThresholds overrides the minimum overlaps passed to each matcher.
func WithThresholds(vendorMinOverlap, patternMinOverlap int) Option {
	return func(b *Builder) {
		b.vendorMinOverlap = vendorMinOverlap
		b.patternMinOverlap = patternMinOverlap
	}
}

// WithLogger sets the builder's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a Builder using the matchers' default thresholds.
func NewBuilder(vendors VendorLookup, patterns PatternLookup, opts ...Option) *Builder {
	b := &Builder{
		vendors:           vendors,
		patterns:          patterns,
		vendorMinOverlap:  matcher.DefaultVendorMinOverlap,
		patternMinOverlap: matcher.DefaultPatternMinOverlap,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build looks up vendorName and description independently and attaches
// both context sentences. It never returns nil.
func (b *Builder) Build(ctx context.Context, vendorName, description string) *Precedent {
	ctx, span := tracer.Start(ctx, "precedent.Build")
	defer span.End()

	vm := b.vendors.Match(ctx, vendorName, b.vendorMinOverlap)
	pm := b.patterns.Match(ctx, description, b.patternMinOverlap)

	p := &Precedent{
		VendorMatch:    vm,
		PatternMatch:   pm,
		VendorContext:  matcher.VendorContext(vm),
		PatternContext: matcher.PatternContext(pm),
	}

	span.SetAttributes(
		attribute.String("vendor.match_type", matchType(vm)),
		attribute.String("pattern.match_type", matchType(pm)),
		attribute.String("precedent.strength", string(p.Strength())),
	)
	b.logger.Debug("precedent built",
		zap.String("vendor", vendorName),
		zap.String("vendor_match", matchType(vm)),
		zap.String("pattern_match", matchType(pm)),
		zap.Bool("novel", p.IsNovel()))

	return p
}

func matchType[R any](m *matcher.MatchResult[R]) string {
	if m == nil {
		return matcher.MatchNone.String()
	}
	return m.Type.String()
}
