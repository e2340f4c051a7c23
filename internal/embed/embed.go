// Package embed wraps the external embedding service behind a batching
// generator that produces fixed-dimension vectors for chunk texts and
// query strings.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// Defaults for the generator.
const (
	// DefaultBatchSize bounds how many texts go into one embedding
	// request, limiting request size and per-call latency.
	DefaultBatchSize = 64

	// DefaultDimension is the expected vector width; it must match the
	// vector column width in the store schema.
	DefaultDimension = 1536

	// DefaultTimeout bounds one embedding service call. Timeouts surface
	// as retryable failures at the filing (or search round) granularity,
	// never as process-wide failures.
	DefaultTimeout = 60 * time.Second
)

// ErrDimensionMismatch indicates the service returned vectors of an
// unexpected width, which would corrupt the vector column on insert.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Config controls batching and validation.
type Config struct {
	BatchSize int           // zero means DefaultBatchSize
	Dimension int           // zero means DefaultDimension
	Timeout   time.Duration // zero means DefaultTimeout
}

// Generator batches texts through an ai.Embedder and validates the
// returned vector dimension.
type Generator struct {
	embedder  ai.Embedder
	batchSize int
	dimension int
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Generator.
func New(embedder ai.Embedder, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{
		embedder:  embedder,
		batchSize: batch,
		dimension: dim,
		timeout:   timeout,
		logger:    logger,
	}
}

// Dimension returns the vector width the generator validates against.
func (g *Generator) Dimension() int { return g.dimension }

// EmbedBatch embeds all texts, in order, splitting into batches of the
// configured size. An error on any batch fails the whole call: a filing
// with partially embedded chunks must not be persisted.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	vectors := make([][]float32, 0, len(texts))

	for offset := 0; offset < len(texts); offset += g.batchSize {
		end := offset + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := g.embedOnce(ctx, texts[offset:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch at offset %d: %w", offset, err)
		}
		vectors = append(vectors, batch...)
	}

	g.logger.Debug("generated embeddings",
		"texts", len(texts),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := g.embedOnce(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vectors[0], nil
}

func (g *Generator) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := g.embedder.Embed(callCtx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors",
			len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != g.dimension {
			return nil, fmt.Errorf("%w: got %d, want %d",
				ErrDimensionMismatch, len(emb.Embedding), g.dimension)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}
