// Package indexer orchestrates the filing indexing pipeline: fetch,
// parse, chunk, tag, embed, store.
//
// A run is triggered synchronously but executes in the background. The
// trigger commits the ticker's state to indexing before it returns, so a
// status poll issued immediately after the acknowledgment always
// observes the run. At most one run per ticker is active at a time;
// triggering a ticker that is already indexing is acknowledged without
// starting a second run.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/investron/investron/internal/filing"
)

// DefaultLimits is how many recent filings of each type one run indexes.
// Annual reports are long and slow to index, current reports short and
// frequent.
var DefaultLimits = map[filing.Type]int{
	filing.Type10K: 2,
	filing.Type10Q: 4,
	filing.Type8K:  8,
}

// Source lists and fetches filings for a ticker.
type Source interface {
	// List returns up to limit most recent filings of one type, newest
	// first.
	List(ctx context.Context, ticker string, ft filing.Type, limit int) ([]filing.Ref, error)

	// Fetch downloads the primary document for a filing.
	Fetch(ctx context.Context, ref filing.Ref) (filing.Document, error)
}

// Parser splits a filing's markup into sections.
type Parser interface {
	Parse(html string, ft filing.Type) ([]filing.Section, error)
}

// Chunker splits sections into chunks with sequential indexes.
type Chunker interface {
	SplitAll(sections []filing.Section) []filing.Chunk
}

// Tagger extracts topic phrases for a section. Failures degrade to an
// empty list.
type Tagger interface {
	Topics(ctx context.Context, ticker string, ft filing.Type, section filing.Section) []string
}

// Embedder turns texts into vectors, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore persists chunk sets and answers aggregate queries.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, ticker string, chunks []filing.Chunk) error
	DeleteTicker(ctx context.Context, ticker string) error
	TypeBreakdown(ctx context.Context, ticker string) (map[filing.Type]int, error)
}

// StatusStore persists per-ticker run state.
type StatusStore interface {
	Upsert(ctx context.Context, ticker string, state State, errMsg string) error
	MarkReady(ctx context.Context, ticker string, filings, chunks int, lastFiling time.Time) error
	Get(ctx context.Context, ticker string) (Status, error)
	Delete(ctx context.Context, ticker string) error
}

// Config controls a run.
type Config struct {
	// Limits overrides DefaultLimits per filing type. Types absent from
	// the map fall back to the default.
	Limits map[filing.Type]int
}

func (c Config) limit(ft filing.Type) int {
	if n, ok := c.Limits[ft]; ok && n > 0 {
		return n
	}
	return DefaultLimits[ft]
}

// Indexer runs the indexing pipeline.
type Indexer struct {
	source  Source
	parser  Parser
	chunker Chunker
	tagger  Tagger
	embed   Embedder
	chunks  ChunkStore
	status  StatusStore
	cfg     Config
	logger  *slog.Logger

	progress *progressBoard

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// New creates an Indexer.
func New(source Source, parser Parser, chunker Chunker, tagger Tagger,
	embed Embedder, chunks ChunkStore, status StatusStore,
	cfg Config, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		source:   source,
		parser:   parser,
		chunker:  chunker,
		tagger:   tagger,
		embed:    embed,
		chunks:   chunks,
		status:   status,
		cfg:      cfg,
		logger:   logger,
		progress: newProgressBoard(),
		active:   make(map[string]struct{}),
	}
}

// Start triggers an indexing run for a ticker. The indexing state is
// committed before Start returns; the pipeline itself runs in the
// background. If a run for the ticker is already active, Start returns
// nil without starting another.
func (ix *Indexer) Start(ctx context.Context, ticker string) error {
	ticker = strings.ToUpper(ticker)

	ix.mu.Lock()
	if _, running := ix.active[ticker]; running {
		ix.mu.Unlock()
		ix.logger.Info("indexing already in progress", "ticker", ticker)
		return nil
	}
	ix.active[ticker] = struct{}{}
	ix.mu.Unlock()

	if err := ix.status.Upsert(ctx, ticker, StateIndexing, ""); err != nil {
		ix.mu.Lock()
		delete(ix.active, ticker)
		ix.mu.Unlock()
		return fmt.Errorf("recording indexing state: %w", err)
	}
	ix.progress.set(ticker, "starting")

	// The run must outlive the triggering request.
	runCtx := context.WithoutCancel(ctx)
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer func() {
			ix.mu.Lock()
			delete(ix.active, ticker)
			ix.mu.Unlock()
			ix.progress.clear(ticker)
		}()
		defer func() {
			// A panic in the pipeline fails the run, not the process.
			if r := recover(); r != nil {
				ix.fail(runCtx, ticker, fmt.Errorf("indexing panicked: %v", r))
			}
		}()
		ix.run(runCtx, ticker)
	}()

	return nil
}

// Wait blocks until all background runs finish. Used during shutdown and
// in tests.
func (ix *Indexer) Wait() { ix.wg.Wait() }

// run executes the full pipeline for one ticker and records the outcome.
func (ix *Indexer) run(ctx context.Context, ticker string) {
	start := time.Now()
	ix.logger.Info("indexing started", "ticker", ticker)

	chunks, indexed, lastFiling, err := ix.collect(ctx, ticker)
	if err != nil {
		ix.fail(ctx, ticker, err)
		return
	}
	if indexed == 0 {
		ix.fail(ctx, ticker, fmt.Errorf("no filings could be indexed for %s", ticker))
		return
	}

	ix.progress.set(ticker, fmt.Sprintf("storing %d chunks", len(chunks)))
	if err := ix.chunks.ReplaceChunks(ctx, ticker, chunks); err != nil {
		ix.fail(ctx, ticker, fmt.Errorf("storing chunks: %w", err))
		return
	}

	if err := ix.status.MarkReady(ctx, ticker, indexed, len(chunks), lastFiling); err != nil {
		ix.logger.Error("recording ready state failed", "ticker", ticker, "error", err)
		return
	}

	ix.logger.Info("indexing completed",
		"ticker", ticker,
		"filings", indexed,
		"chunks", len(chunks),
		"elapsed", time.Since(start).Round(time.Millisecond))
}

// collect walks every filing type, indexes up to the configured number
// of recent filings of each, and accumulates all chunks for one atomic
// store swap. A failure on one filing skips that filing; a failure
// listing a type skips that type. Only a run with zero successfully
// indexed filings is an error. Also returns the most recent filing date
// among the indexed filings.
func (ix *Indexer) collect(ctx context.Context, ticker string) ([]filing.Chunk, int, time.Time, error) {
	var all []filing.Chunk
	var lastFiling time.Time
	indexed := 0

	for _, ft := range filing.Types() {
		limit := ix.cfg.limit(ft)
		ix.progress.set(ticker, fmt.Sprintf("listing %s filings", ft))

		refs, err := ix.source.List(ctx, ticker, ft, limit)
		if err != nil {
			ix.logger.Warn("listing filings failed",
				"ticker", ticker, "type", ft, "error", err)
			continue
		}

		for _, ref := range refs {
			chunks, err := ix.indexFiling(ctx, ref)
			if err != nil {
				ix.logger.Warn("indexing filing failed",
					"ticker", ticker,
					"type", ft,
					"date", ref.Date.Format("2006-01-02"),
					"error", err)
				continue
			}
			all = append(all, chunks...)
			indexed++
			if ref.Date.After(lastFiling) {
				lastFiling = ref.Date
			}
		}
	}

	// Re-number across the whole run so chunk indexes are unique per
	// ticker, not just per filing.
	sortChunks(all)
	for i := range all {
		all[i].Index = i
	}
	return all, indexed, lastFiling, nil
}

// indexFiling runs fetch, parse, chunk, tag, embed for one filing.
func (ix *Indexer) indexFiling(ctx context.Context, ref filing.Ref) ([]filing.Chunk, error) {
	ix.progress.set(ref.Ticker, fmt.Sprintf("fetching %s filed %s",
		ref.Type, ref.Date.Format("2006-01-02")))

	doc, err := ix.source.Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetching document: %w", err)
	}

	sections, err := ix.parser.Parse(doc.HTML, doc.Type)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	ix.progress.set(ref.Ticker, fmt.Sprintf("chunking %s filed %s",
		ref.Type, ref.Date.Format("2006-01-02")))

	// Topics are extracted once per section and inherited by each of its
	// chunks.
	topicsBySection := make(map[string][]string, len(sections))
	for _, sec := range sections {
		topicsBySection[sec.ItemCode] = ix.tagger.Topics(ctx, ref.Ticker, ref.Type, sec)
	}

	chunks := ix.chunker.SplitAll(sections)
	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].Ticker = strings.ToUpper(ref.Ticker)
		chunks[i].FilingType = ref.Type
		chunks[i].FilingDate = ref.Date
		chunks[i].Topics = topicsBySection[chunks[i].ItemCode]
		texts[i] = chunks[i].Text
	}

	ix.progress.set(ref.Ticker, fmt.Sprintf("embedding %d chunks from %s filed %s",
		len(chunks), ref.Type, ref.Date.Format("2006-01-02")))

	vectors, err := ix.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return chunks, nil
}

func (ix *Indexer) fail(ctx context.Context, ticker string, err error) {
	ix.logger.Error("indexing failed", "ticker", ticker, "error", err)
	if uerr := ix.status.Upsert(ctx, ticker, StateError, err.Error()); uerr != nil {
		ix.logger.Error("recording error state failed", "ticker", ticker, "error", uerr)
	}
}

// sortChunks orders chunks by filing type, newest filing first within a
// type, then document order. The order determines the stored chunk
// index.
func sortChunks(chunks []filing.Chunk) {
	rank := map[filing.Type]int{}
	for i, ft := range filing.Types() {
		rank[ft] = i
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.FilingType != b.FilingType {
			return rank[a.FilingType] < rank[b.FilingType]
		}
		if !a.FilingDate.Equal(b.FilingDate) {
			return a.FilingDate.After(b.FilingDate)
		}
		return a.Index < b.Index
	})
}

// Report is the merged view of a ticker's index: persisted state and
// counts, in-flight progress, and per-type filing counts.
type Report struct {
	Ticker         string
	State          State
	Error          string
	Progress       string // non-empty only while a run is active
	FilingsIndexed int
	ChunksTotal    int
	LastFilingDate time.Time
	LastIndexedAt  time.Time
	Filings        map[filing.Type]int
	UpdatedAt      time.Time
}

// Status returns the merged report for a ticker. A ticker with no
// recorded run reports StatePending.
func (ix *Indexer) Status(ctx context.Context, ticker string) (Report, error) {
	ticker = strings.ToUpper(ticker)
	rep := Report{Ticker: ticker, State: StatePending}

	st, err := ix.status.Get(ctx, ticker)
	switch {
	case err == nil:
		rep.State = st.State
		rep.Error = st.Error
		rep.FilingsIndexed = st.FilingsIndexed
		rep.ChunksTotal = st.ChunksTotal
		rep.LastFilingDate = st.LastFilingDate
		rep.LastIndexedAt = st.LastIndexedAt
		rep.UpdatedAt = st.UpdatedAt
	case errors.Is(err, ErrStatusNotFound):
		// pending
	default:
		return Report{}, err
	}

	if msg, ok := ix.progress.get(ticker); ok {
		rep.Progress = msg
	}

	breakdown, err := ix.chunks.TypeBreakdown(ctx, ticker)
	if err != nil {
		return Report{}, err
	}
	rep.Filings = breakdown
	return rep, nil
}

// Delete removes a ticker's chunks and status. A delete during an active
// run is rejected; the run would immediately repopulate the store.
func (ix *Indexer) Delete(ctx context.Context, ticker string) error {
	ticker = strings.ToUpper(ticker)

	ix.mu.Lock()
	_, running := ix.active[ticker]
	ix.mu.Unlock()
	if running {
		return fmt.Errorf("cannot delete %s while indexing is in progress", ticker)
	}

	if err := ix.chunks.DeleteTicker(ctx, ticker); err != nil {
		return err
	}
	if err := ix.status.Delete(ctx, ticker); err != nil {
		return err
	}
	ix.logger.Info("index deleted", "ticker", ticker)
	return nil
}
