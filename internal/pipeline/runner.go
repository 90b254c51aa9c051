// Package pipeline drives a batch of transactions through precedent lookup,
// statute retrieval and classification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/refundmatch/internal/classifier"
	"github.com/fyrsmithlabs/refundmatch/internal/legal"
	"github.com/fyrsmithlabs/refundmatch/internal/logging"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "refundmatch_pipeline_rows_total",
	Help: "Transactions processed by the batch pipeline, by outcome.",
}, []string{"outcome"})

const defaultTopK = 5

// PrecedentBuilder is satisfied by *precedent.Builder.
type PrecedentBuilder interface {
	Build(ctx context.Context, vendorName, description string) *precedent.Precedent
}

// Searcher is satisfied by *legal.Corpus.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]legal.Passage, error)
}

// Result is the outcome of one transaction.
type Result struct {
	Row         int
	Transaction classifier.Transaction
	Precedent   *precedent.Precedent
	Passages    []legal.Passage
	Verdict     *classifier.Verdict
	Err         error
}

// Failed reports whether any stage of the row failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Runner processes batches sequentially.
type Runner struct {
	builder    PrecedentBuilder
	searcher   Searcher
	topK       int
	classifier classifier.Classifier
	logger     *logging.Logger
	newID      func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithSearcher retrieves k statute passages per row.
func WithSearcher(s Searcher, k int) Option {
	return func(r *Runner) {
		r.searcher = s
		if k > 0 {
			r.topK = k
		}
	}
}

// WithClassifier classifies each row after precedent lookup.
func WithClassifier(c classifier.Classifier) Option {
	return func(r *Runner) {
		r.classifier = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner. Without a searcher or classifier it only
// attaches precedent.
func NewRunner(builder PrecedentBuilder, opts ...Option) *Runner {
	r := &Runner{
		builder: builder,
		topK:    defaultTopK,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	return r
}

// Run processes every transaction in order and returns one Result per row.
// A failing row is recorded and logged; it never stops the batch.
func (r *Runner) Run(ctx context.Context, txs []classifier.Transaction) []Result {
	ctx = logging.WithBatchID(ctx, r.newID())
	start := time.Now()
	r.logger.Info(ctx, "batch started", zap.Int("rows", len(txs)))

	results := make([]Result, 0, len(txs))
	var failed int
	for i, tx := range txs {
		res := r.process(logging.WithRowIndex(ctx, i), i, tx)
		if res.Failed() {
			failed++
			rowsTotal.WithLabelValues("failed").Inc()
		} else {
			rowsTotal.WithLabelValues("ok").Inc()
		}
		results = append(results, res)
	}

	r.logger.Info(ctx, "batch finished",
		zap.Int("rows", len(txs)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return results
}

func (r *Runner) process(ctx context.Context, row int, tx classifier.Transaction) Result {
	res := Result{Row: row, Transaction: tx}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	res.Precedent = r.builder.Build(ctx, tx.Vendor, tx.Description)

	var errs []error
	if r.searcher != nil && tx.Description != "" {
		passages, err := r.searcher.Search(ctx, tx.Description, r.topK)
		if err != nil {
			errs = append(errs, fmt.Errorf("searching statutes: %w", err))
		}
		res.Passages = passages
	}

	if r.classifier != nil {
		v, err := r.classifier.Classify(ctx, tx, res.Passages, res.Precedent)
		if err != nil {
			errs = append(errs, fmt.Errorf("classifying: %w", err))
		}
		res.Verdict = v
	}

	res.Err = errors.Join(errs...)
	if res.Err != nil {
		r.logger.Warn(ctx, "row failed", zap.String("vendor", tx.Vendor), zap.Error(res.Err))
	} else {
		r.logger.Debug(ctx, "row processed",
			zap.String("vendor", tx.Vendor),
			zap.String("strength", string(res.Precedent.Strength())))
	}
	return res
}

// Stats summarizes a batch.
type Stats struct {
	Total    int `json:"total"`
	Failed   int `json:"failed"`
	Novel    int `json:"novel"`
	Eligible int `json:"eligible"`
}

// Summarize counts outcomes across results.
func Summarize(results []Result) Stats {
	s := Stats{Total: len(results)}
	for _, r := range results {
		if r.Failed() {
			s.Failed++
		}
		if r.Precedent.IsNovel() {
			s.Novel++
		}
		if r.Verdict != nil && r.Verdict.Eligible {
			s.Eligible++
		}
	}
	return s
}

