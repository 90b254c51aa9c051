package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/refundmatch/internal/classifier"
	"github.com/fyrsmithlabs/refundmatch/internal/config"
	"github.com/fyrsmithlabs/refundmatch/internal/feedback"
	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/legal"
	"github.com/fyrsmithlabs/refundmatch/internal/logging"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
	"github.com/fyrsmithlabs/refundmatch/internal/pipeline"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
	"go.uber.org/zap"
)

// Registry provides access to the wired refundmatch services.
type Registry interface {
	Store() history.Store
	Vendors() *matcher.VendorMatcher
	Patterns() *matcher.PatternMatcher
	Precedent() *precedent.Builder
	Learner() *feedback.Learner
	Runner() *pipeline.Runner

	// Corpus is nil unless the legal corpus is enabled.
	Corpus() *legal.Corpus
	// Classifier is nil unless the classifier is enabled.
	Classifier() classifier.Classifier

	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Store      history.Store
	Vendors    *matcher.VendorMatcher
	Patterns   *matcher.PatternMatcher
	Precedent  *precedent.Builder
	Learner    *feedback.Learner
	Runner     *pipeline.Runner
	Corpus     *legal.Corpus
	Classifier classifier.Classifier
}

type registry struct {
	store      history.Store
	vendors    *matcher.VendorMatcher
	patterns   *matcher.PatternMatcher
	precedent  *precedent.Builder
	learner    *feedback.Learner
	runner     *pipeline.Runner
	corpus     *legal.Corpus
	classifier classifier.Classifier
}

// NewRegistry creates a registry from already constructed services.
func NewRegistry(opts Options) Registry {
	return &registry{
		store:      opts.Store,
		vendors:    opts.Vendors,
		patterns:   opts.Patterns,
		precedent:  opts.Precedent,
		learner:    opts.Learner,
		runner:     opts.Runner,
		corpus:     opts.Corpus,
		classifier: opts.Classifier,
	}
}

func (r *registry) Store() history.Store              { return r.store }
func (r *registry) Vendors() *matcher.VendorMatcher   { return r.vendors }
func (r *registry) Patterns() *matcher.PatternMatcher { return r.patterns }
func (r *registry) Precedent() *precedent.Builder     { return r.precedent }
func (r *registry) Learner() *feedback.Learner        { return r.learner }
func (r *registry) Runner() *pipeline.Runner          { return r.runner }
func (r *registry) Corpus() *legal.Corpus             { return r.corpus }
func (r *registry) Classifier() classifier.Classifier { return r.classifier }

// Close closes the history store.
func (r *registry) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Open builds every service cfg enables. On error nothing is left open.
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Registry, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := history.Open(ctx, history.Config{
		Backend:     cfg.History.Backend,
		BoltPath:    cfg.History.BoltPath,
		PostgresDSN: cfg.History.PostgresDSN.Value(),
		Migrate:     cfg.History.Migrate,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	reg, err := build(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info(ctx, "services ready",
		zap.String("history_backend", cfg.History.Backend),
		zap.Bool("legal_enabled", reg.Corpus() != nil),
		zap.Bool("classifier_enabled", reg.Classifier() != nil),
	)
	return reg, nil
}

// build wires the services on top of an open store.
func build(cfg *config.Config, store history.Store, logger *logging.Logger) (Registry, error) {
	zl := logger.Underlying()

	vendors := matcher.NewVendorMatcher(store, zl.Named("vendor_matcher"))
	patterns := matcher.NewPatternMatcher(store, zl.Named("pattern_matcher"))
	builder := precedent.NewBuilder(vendors, patterns,
		precedent.WithThresholds(cfg.Matcher.VendorMinOverlap, cfg.Matcher.PatternMinOverlap),
		precedent.WithLogger(zl.Named("precedent")),
	)

	opts := Options{
		Store:     store,
		Vendors:   vendors,
		Patterns:  patterns,
		Precedent: builder,
		Learner:   feedback.NewLearner(store, zl.Named("feedback")),
	}
	runnerOpts := []pipeline.Option{pipeline.WithLogger(logger.Named("pipeline"))}

	if cfg.Legal.Enabled {
		corpus, err := OpenCorpus(cfg.Legal, zl.Named("legal"))
		if err != nil {
			return nil, err
		}
		opts.Corpus = corpus
		runnerOpts = append(runnerOpts, pipeline.WithSearcher(corpus, cfg.Legal.TopK))
	}

	if cfg.Classifier.Enabled {
		model, err := classifier.NewOpenAIModel(classifier.ModelConfig{
			BaseURL: cfg.Classifier.BaseURL,
			Model:   cfg.Classifier.Model,
			APIKey:  cfg.Classifier.APIKey.Value(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating classifier model: %w", err)
		}
		c := classifier.NewLLMClassifier(model,
			classifier.WithRateLimit(cfg.Classifier.RequestsPerSecond),
			classifier.WithTimeout(cfg.Classifier.Timeout.Duration()),
			classifier.WithLogger(zl.Named("classifier")),
		)
		opts.Classifier = c
		runnerOpts = append(runnerOpts, pipeline.WithClassifier(c))
	}

	opts.Runner = pipeline.NewRunner(builder, runnerOpts...)
	return NewRegistry(opts), nil
}

// OpenCorpus opens the legal passage corpus with an embedder built from cfg.
// It does not require cfg.Enabled, so tooling can index before enabling.
func OpenCorpus(cfg config.LegalConfig, logger *zap.Logger) (*legal.Corpus, error) {
	embedder, err := legal.NewEmbedder(legal.EmbedderConfig{
		BaseURL: cfg.EmbeddingBaseURL,
		Model:   cfg.EmbeddingModel,
		APIKey:  cfg.EmbeddingAPIKey.Value(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	corpus, err := legal.Open(legal.Config{
		Path:       cfg.Path,
		Collection: cfg.Collection,
	}, legal.EmbeddingFunc(embedder), logger)
	if err != nil {
		return nil, fmt.Errorf("opening legal corpus: %w", err)
	}
	return corpus, nil
}
