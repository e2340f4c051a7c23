package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// State is the lifecycle state of a ticker's index.
type State string

const (
	// StatePending means no indexing run has been recorded for the ticker.
	StatePending State = "pending"

	// StateIndexing means a run is in progress. Previously indexed chunks,
	// if any, remain searchable until the run completes.
	StateIndexing State = "indexing"

	// StateReady means the last run completed and its chunks are live.
	StateReady State = "ready"

	// StateError means the last run failed. Chunks from the run before it,
	// if any, remain live.
	StateError State = "error"
)

// Status is one ticker's persisted index state. The counts and filing
// date describe the last successful run and survive later failures.
type Status struct {
	Ticker         string
	State          State
	Error          string
	FilingsIndexed int
	ChunksTotal    int
	LastFilingDate time.Time // most recent filing date in the index
	LastIndexedAt  time.Time // zero unless the ticker has ever reached ready
	UpdatedAt      time.Time
}

// ErrStatusNotFound is returned by Get when the ticker has no status row.
var ErrStatusNotFound = errors.New("no index status for ticker")

// PGStatusStore persists per-ticker index status rows.
type PGStatusStore struct {
	pool *pgxpool.Pool
}

// NewStatusStore creates a PGStatusStore on an existing pool.
func NewStatusStore(pool *pgxpool.Pool) *PGStatusStore {
	return &PGStatusStore{pool: pool}
}

// Upsert writes a ticker's state without touching the counts or
// timestamps of the last successful run, so those survive re-indexing
// and later failures.
func (s *PGStatusStore) Upsert(ctx context.Context, ticker string, state State, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO filing_index_status (ticker, state, error, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (ticker) DO UPDATE SET
			state = EXCLUDED.state,
			error = EXCLUDED.error,
			updated_at = now()`,
		strings.ToUpper(ticker), string(state), errMsg)
	if err != nil {
		return fmt.Errorf("upserting index status for %s: %w", ticker, err)
	}
	return nil
}

// MarkReady records a successful run: state ready, the run's cumulative
// counts, the most recent filing date in the index, and last_indexed_at
// advanced to now.
func (s *PGStatusStore) MarkReady(ctx context.Context, ticker string, filings, chunks int, lastFiling time.Time) error {
	var filingDate *time.Time
	if !lastFiling.IsZero() {
		filingDate = &lastFiling
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO filing_index_status
			(ticker, state, error, filings_indexed, chunks_total,
			 last_filing_date, last_indexed_at, updated_at)
		VALUES ($1, 'ready', '', $2, $3, $4, now(), now())
		ON CONFLICT (ticker) DO UPDATE SET
			state = 'ready',
			error = '',
			filings_indexed = EXCLUDED.filings_indexed,
			chunks_total = EXCLUDED.chunks_total,
			last_filing_date = EXCLUDED.last_filing_date,
			last_indexed_at = now(),
			updated_at = now()`,
		strings.ToUpper(ticker), filings, chunks, filingDate)
	if err != nil {
		return fmt.Errorf("recording ready status for %s: %w", ticker, err)
	}
	return nil
}

// Get returns a ticker's status, or ErrStatusNotFound.
func (s *PGStatusStore) Get(ctx context.Context, ticker string) (Status, error) {
	var st Status
	var errMsg *string
	var lastFiling, lastIndexed *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT ticker, state, error, filings_indexed, chunks_total,
		       last_filing_date, last_indexed_at, updated_at
		FROM filing_index_status
		WHERE ticker = $1`,
		strings.ToUpper(ticker)).
		Scan(&st.Ticker, &st.State, &errMsg, &st.FilingsIndexed, &st.ChunksTotal,
			&lastFiling, &lastIndexed, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Status{}, fmt.Errorf("%w: %s", ErrStatusNotFound, strings.ToUpper(ticker))
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading index status for %s: %w", ticker, err)
	}
	if errMsg != nil {
		st.Error = *errMsg
	}
	if lastFiling != nil {
		st.LastFilingDate = *lastFiling
	}
	if lastIndexed != nil {
		st.LastIndexedAt = *lastIndexed
	}
	return st, nil
}

// Delete removes a ticker's status row. Deleting a missing row is not an
// error.
func (s *PGStatusStore) Delete(ctx context.Context, ticker string) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM filing_index_status WHERE ticker = $1`,
		strings.ToUpper(ticker)); err != nil {
		return fmt.Errorf("deleting index status for %s: %w", ticker, err)
	}
	return nil
}
