// Package app wires the application together: configuration, database,
// Genkit, and the indexing and research services.
//
// Dependencies flow in one direction: Setup builds each component from
// the ones before it and hands the finished container to the command
// layer. Components receive interfaces, so tests can assemble smaller
// graphs without this package.
package app

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/investron/investron/db"
	"github.com/investron/investron/internal/chunker"
	"github.com/investron/investron/internal/config"
	"github.com/investron/investron/internal/edgar"
	"github.com/investron/investron/internal/embed"
	"github.com/investron/investron/internal/indexer"
	"github.com/investron/investron/internal/log"
	"github.com/investron/investron/internal/parser"
	"github.com/investron/investron/internal/research"
	"github.com/investron/investron/internal/token"
	"github.com/investron/investron/internal/topics"
	"github.com/investron/investron/internal/vectorstore"
)

// App is the assembled application.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Store    *vectorstore.Store
	Indexer  *indexer.Indexer
	Research *research.Loop
}

// Setup initializes the application. On failure everything already
// initialized is released; on success the caller owns Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := vectorstore.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.Pool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit")
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	est, err := token.NewTiktoken()
	if err != nil {
		return nil, fmt.Errorf("loading token encoding: %w", err)
	}

	generator := embed.New(embedder, embed.Config{
		BatchSize: cfg.EmbedBatch,
		Dimension: cfg.EmbedderDim,
	}, logger.With("component", "embed"))

	a.Store = vectorstore.New(pool, logger.With("component", "vectorstore"))
	statusStore := indexer.NewStatusStore(pool)

	source := edgar.New(edgar.Config{
		UserAgent:         cfg.EdgarUserAgent,
		RequestsPerSecond: cfg.EdgarRPS,
	}, logger.With("component", "edgar"))

	docParser := parser.New(parser.Config{MinSections: cfg.MinSections},
		logger.With("component", "parser"))

	docChunker := chunker.New(chunker.Config{
		MaxTokens: cfg.ChunkMaxTokens,
		Overlap:   cfg.ChunkOverlap,
	}, est, logger.With("component", "chunker"))

	tagger := topics.New(
		&topics.GenkitGenerator{G: g, Model: cfg.FullModelName()},
		est, logger.With("component", "topics"))

	a.Indexer = indexer.New(source, docParser, docChunker, tagger,
		generator, a.Store, statusStore,
		indexer.Config{Limits: cfg.IndexLimits()},
		logger.With("component", "indexer"))

	a.Research = research.New(g, generator, a.Store, est, research.Config{
		Model:       cfg.FullModelName(),
		MaxRounds:   cfg.MaxRounds,
		TopK:        cfg.TopK,
		TokenBudget: cfg.TokenBudget,
	}, logger.With("component", "research"))

	return a, nil
}

// Close releases resources. Waits for in-flight indexing runs so their
// final status writes land before the pool closes.
func (a *App) Close() {
	if a.Indexer != nil {
		a.Indexer.Wait()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}
