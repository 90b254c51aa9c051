// Package legal indexes Washington tax statute and rule passages and ranks
// them by semantic similarity to a transaction.
package legal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundmatch/internal/sanitize"
)

var tracer = otel.Tracer("refundmatch.legal")

var (
	ErrEmptyQuery    = errors.New("query cannot be empty")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Passage is one citable unit of statute or rule text.
type Passage struct {
	// ID defaults to Citation when empty.
	ID       string  `json:"id,omitempty"`
	Citation string  `json:"citation"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text"`
	Score    float32 `json:"score,omitempty"`
}

// Config configures the passage collection.
type Config struct {
	// Path is the chromem persistence directory. Empty keeps the corpus in memory.
	Path       string
	Collection string
	Compress   bool
}

// Corpus is a chromem-go collection of passages.
type Corpus struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

// Open opens or creates the passage collection. embed must be deterministic
// for a given text.
func Open(cfg Config, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Corpus, error) {
	if embed == nil {
		return nil, fmt.Errorf("%w: embedding function is required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db := chromem.NewDB()
	if cfg.Path != "" {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
	}

	name := sanitize.Identifier(cfg.Collection)
	collection, err := db.GetOrCreateCollection(name, map[string]string{"kind": "legal"}, embed)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", name, err)
	}

	return &Corpus{db: db, collection: collection, logger: logger}, nil
}

// Count returns the number of indexed passages.
func (c *Corpus) Count() int {
	return c.collection.Count()
}

// Index embeds and stores passages, replacing any with the same ID.
func (c *Corpus) Index(ctx context.Context, passages []Passage) error {
	ctx, span := tracer.Start(ctx, "legal.Index")
	defer span.End()
	span.SetAttributes(attribute.Int("passage_count", len(passages)))

	if len(passages) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(passages))
	for i, p := range passages {
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("passage %d (%s): text cannot be empty", i, p.Citation)
		}
		id := p.ID
		if id == "" {
			id = p.Citation
		}
		if id == "" {
			return fmt.Errorf("passage %d: citation or id required", i)
		}
		docs = append(docs, chromem.Document{
			ID:      id,
			Content: p.Text,
			Metadata: map[string]string{
				"citation": p.Citation,
				"title":    p.Title,
			},
		})
	}

	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("indexing passages: %w", err)
	}

	c.logger.Info("indexed legal passages", zap.Int("count", len(docs)), zap.Int("total", c.Count()))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns up to k passages ranked by similarity to query.
func (c *Corpus) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "legal.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= document count.
	n := c.collection.Count()
	if n == 0 {
		return []Passage{}, nil
	}
	if k > n {
		k = n
	}

	results, err := c.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying passages: %w", err)
	}

	out := make([]Passage, len(results))
	for i, r := range results {
		out[i] = Passage{
			ID:       r.ID,
			Citation: r.Metadata["citation"],
			Title:    r.Metadata["title"],
			Text:     r.Content,
			Score:    r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
