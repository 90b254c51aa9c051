// Package classifier asks an LLM whether a transaction qualifies for a
// Washington use-tax refund, given statute passages and historical precedent.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/refundmatch/internal/legal"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidVerdict = errors.New("invalid verdict")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

const (
	defaultRequestsPerSecond = 2
	defaultBurst             = 1
	defaultMaxTokens         = 1024

	// noPrecedentMaxConfidence caps verdicts backed by legal text alone.
	noPrecedentMaxConfidence = 0.75
)

// Transaction is one invoice line under review.
type Transaction struct {
	Vendor        string  `json:"vendor"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
}

// Verdict is the classifier's refund eligibility decision.
type Verdict struct {
	Eligible    bool     `json:"eligible"`
	RefundBasis string   `json:"refund_basis"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Citations   []string `json:"citations,omitempty"`
}

// Classifier decides refund eligibility.
type Classifier interface {
	Classify(ctx context.Context, tx Transaction, passages []legal.Passage, p *precedent.Precedent) (*Verdict, error)
}

// LLMClassifier classifies through a langchaingo model, rate limited.
type LLMClassifier struct {
	model     llms.Model
	limiter   *rate.Limiter
	timeout   time.Duration
	maxTokens int
	logger    *zap.Logger
}

// Option configures an LLMClassifier.
type Option func(*LLMClassifier)

// WithRateLimit sets requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *LLMClassifier) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), defaultBurst)
		}
	}
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(c *LLMClassifier) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *LLMClassifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewLLMClassifier wraps model.
func NewLLMClassifier(model llms.Model, opts ...Option) *LLMClassifier {
	c := &LLMClassifier{
		model:     model,
		limiter:   rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		maxTokens: defaultMaxTokens,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModelConfig configures an OpenAI-compatible chat model.
type ModelConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// NewOpenAIModel creates a langchaingo OpenAI chat model.
func NewOpenAIModel(cfg ModelConfig) (llms.Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return llm, nil
}

// Classify builds the prompt, calls the model and parses its JSON verdict.
// Without precedent the confidence is capped at 0.75.
func (c *LLMClassifier) Classify(ctx context.Context, tx Transaction, passages []legal.Passage, p *precedent.Precedent) (*Verdict, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(tx, passages, p)
	start := time.Now()
	text, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(0),
		llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		return nil, fmt.Errorf("calling model: %w", err)
	}

	v, err := ParseVerdict(text)
	if err != nil {
		c.logger.Warn("unparseable classifier response",
			zap.String("vendor", tx.Vendor),
			zap.Int("response_len", len(text)),
			zap.Error(err))
		return nil, err
	}
	if p.Strength() == precedent.StrengthNone && v.Confidence > noPrecedentMaxConfidence {
		v.Confidence = noPrecedentMaxConfidence
	}

	c.logger.Debug("classified transaction",
		zap.String("vendor", tx.Vendor),
		zap.Bool("eligible", v.Eligible),
		zap.Float64("confidence", v.Confidence),
		zap.Duration("duration", time.Since(start)))
	return v, nil
}
