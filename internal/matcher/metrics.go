package matcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeErrorsTotal counts historical store failures absorbed as "no match".
	// Labels: matcher (vendor, pattern)
	storeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refundmatch",
			Subsystem: "matcher",
			Name:      "store_errors_total",
			Help:      "Historical store failures treated as no precedent",
		},
		[]string{"matcher"},
	)

	// matchesTotal counts match outcomes.
	// Labels: matcher (vendor, pattern), type (none, exact, fuzzy)
	matchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refundmatch",
			Subsystem: "matcher",
			Name:      "matches_total",
			Help:      "Match lookups by matcher and outcome",
		},
		[]string{"matcher", "type"},
	)
)

// Option configures a matcher.
type Option func(*options)

type options struct {
	storeErrors prometheus.Counter
}

// WithStoreErrorCounter replaces the counter incremented on store failures.
func WithStoreErrorCounter(c prometheus.Counter) Option {
	return func(o *options) {
		o.storeErrors = c
	}
}

func buildOptions(matcher string, opts []Option) options {
	o := options{storeErrors: storeErrorsTotal.WithLabelValues(matcher)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func observe[R any](matcher string, m *MatchResult[R]) {
	t := MatchNone
	if m != nil {
		t = m.Type
	}
	matchesTotal.WithLabelValues(matcher, t.String()).Inc()
}
