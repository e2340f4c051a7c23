package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/investron/investron/internal/filing"
)

// defaultSearchTimeout bounds one similarity query so a slow vector scan
// cannot block a retrieval round indefinitely.
const defaultSearchTimeout = 10 * time.Second

// Store persists filing chunks and serves similarity search.
// It is safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on an existing pool. The pool must have been
// created with NewPool (or otherwise carry the pgvector codec
// registration).
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Result is one search hit with its cosine similarity score.
type Result struct {
	Chunk      filing.Chunk
	Similarity float64
}

// ReplaceChunks atomically swaps the stored chunk set for a ticker:
// within one transaction it deletes every existing chunk and inserts the
// new set. Readers either see the old set or the new one, never a
// partial mix, and a failed run leaves the previous index intact.
func (s *Store) ReplaceChunks(ctx context.Context, ticker string, chunks []filing.Chunk) error {
	ticker = strings.ToUpper(ticker)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning chunk replacement: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM filing_chunks WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("deleting existing chunks for %s: %w", ticker, err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		emb := pgvector.NewVector(c.Embedding)
		batch.Queue(`
			INSERT INTO filing_chunks
				(ticker, filing_type, filing_date, section_name, item_code,
				 category, topics, chunk_index, chunk_text, token_count,
				 is_table, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			ticker, string(c.FilingType), c.FilingDate, c.SectionName, c.ItemCode,
			c.Category, c.Topics, c.Index, c.Text, c.TokenCount,
			c.IsTable, emb)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("inserting chunk for %s: %w", ticker, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing insert batch for %s: %w", ticker, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk replacement for %s: %w", ticker, err)
	}

	s.logger.Info("replaced chunk set", "ticker", ticker, "chunks", len(chunks))
	return nil
}

// DeleteTicker removes every chunk for a ticker.
func (s *Store) DeleteTicker(ctx context.Context, ticker string) error {
	ticker = strings.ToUpper(ticker)
	if _, err := s.pool.Exec(ctx, `DELETE FROM filing_chunks WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", ticker, err)
	}
	s.logger.Info("deleted chunk set", "ticker", ticker)
	return nil
}

// TypeBreakdown returns, per filing type, how many distinct filings have
// chunks stored for the ticker.
func (s *Store) TypeBreakdown(ctx context.Context, ticker string) (map[filing.Type]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT filing_type, COUNT(DISTINCT filing_date)
		FROM filing_chunks
		WHERE ticker = $1
		GROUP BY filing_type
		ORDER BY filing_type`,
		strings.ToUpper(ticker))
	if err != nil {
		return nil, fmt.Errorf("querying type breakdown for %s: %w", ticker, err)
	}
	defer rows.Close()

	breakdown := make(map[filing.Type]int)
	for rows.Next() {
		var ft string
		var count int
		if err := rows.Scan(&ft, &count); err != nil {
			return nil, fmt.Errorf("scanning type breakdown: %w", err)
		}
		breakdown[filing.Type(ft)] = count
	}
	return breakdown, rows.Err()
}

// SearchOption configures a similarity search.
type SearchOption func(*searchConfig)

type searchConfig struct {
	filingTypes []filing.Type
	categories  []string
	minDate     time.Time
	limit       int
	timeout     time.Duration
}

// WithFilingTypes restricts results to the given filing types.
func WithFilingTypes(types ...filing.Type) SearchOption {
	return func(c *searchConfig) { c.filingTypes = append(c.filingTypes, types...) }
}

// WithCategories restricts results to the given section categories.
func WithCategories(categories ...string) SearchOption {
	return func(c *searchConfig) { c.categories = append(c.categories, categories...) }
}

// WithMinDate restricts results to filings dated on or after min.
func WithMinDate(min time.Time) SearchOption {
	return func(c *searchConfig) { c.minDate = min }
}

// WithLimit sets the maximum number of rows fetched. Default is 16.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// Search returns the chunks nearest to the query vector for one ticker,
// ordered by descending cosine similarity; ties break toward the most
// recent filing date, then insertion order. The ticker scope is always
// applied; a search can never return another ticker's chunks, regardless
// of filters.
func (s *Store) Search(ctx context.Context, ticker string, query []float32, opts ...SearchOption) ([]Result, error) {
	cfg := searchConfig{limit: 16, timeout: defaultSearchTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	sql, args := buildSearchQuery(strings.ToUpper(ticker), pgvector.NewVector(query), cfg)

	rows, err := s.pool.Query(queryCtx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search for %s: %w", ticker, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var ft string
		if err := rows.Scan(
			&r.Chunk.Ticker, &ft, &r.Chunk.FilingDate,
			&r.Chunk.SectionName, &r.Chunk.ItemCode, &r.Chunk.Category,
			&r.Chunk.Topics, &r.Chunk.Index, &r.Chunk.Text,
			&r.Chunk.TokenCount, &r.Chunk.IsTable, &r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		r.Chunk.FilingType = filing.Type(ft)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return results, nil
}

// buildSearchQuery composes the filtered similarity query. pgvector's
// <=> operator is cosine distance; similarity = 1 - distance. Filters
// are optional and appended as positional parameters, never
// interpolated.
func buildSearchQuery(ticker string, query pgvector.Vector, cfg searchConfig) (string, []any) {
	args := []any{query, ticker}
	where := []string{"ticker = $2"}

	if len(cfg.filingTypes) > 0 {
		types := make([]string, len(cfg.filingTypes))
		for i, t := range cfg.filingTypes {
			types[i] = string(t)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("filing_type = ANY($%d)", len(args)))
	}
	if len(cfg.categories) > 0 {
		args = append(args, cfg.categories)
		where = append(where, fmt.Sprintf("category = ANY($%d)", len(args)))
	}
	if !cfg.minDate.IsZero() {
		args = append(args, cfg.minDate)
		where = append(where, fmt.Sprintf("filing_date >= $%d", len(args)))
	}

	args = append(args, cfg.limit)
	sql := fmt.Sprintf(`
		SELECT ticker, filing_type, filing_date, section_name, item_code,
		       category, topics, chunk_index, chunk_text, token_count,
		       is_table, 1 - (embedding <=> $1) AS similarity
		FROM filing_chunks
		WHERE %s
		ORDER BY embedding <=> $1, filing_date DESC, id
		LIMIT $%d`,
		strings.Join(where, " AND "), len(args))

	return sql, args
}
