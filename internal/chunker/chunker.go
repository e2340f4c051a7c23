// Package chunker splits parsed filing sections into embedding-ready
// chunks.
//
// Rules:
//  1. Each table block becomes exactly one chunk, regardless of token
//     count. Tables are never split or merged with adjacent text,
//     since truncation would corrupt tabular meaning.
//  2. Text is split into chunks capped at MaxTokens, sized with the
//     reference token estimator.
//  3. Consecutive text chunks within a section overlap by Overlap tokens
//     to preserve cross-boundary context for retrieval.
//  4. A chunk never contains text from two sections: the chunker only
//     ever sees one section at a time.
package chunker

import (
	"log/slog"
	"strings"

	"github.com/investron/investron/internal/filing"
	"github.com/investron/investron/internal/token"
)

// Defaults for text chunk sizing.
const (
	DefaultMaxTokens = 512
	DefaultOverlap   = 50
)

// Config controls chunk sizing.
type Config struct {
	// MaxTokens caps the token count of text chunks. Zero means
	// DefaultMaxTokens. Table chunks are exempt.
	MaxTokens int

	// Overlap is the number of tokens shared between consecutive text
	// chunks of the same section. Zero means DefaultOverlap; it must be
	// smaller than MaxTokens.
	Overlap int
}

// Chunker splits sections into chunks.
type Chunker struct {
	maxTokens int
	overlap   int
	est       token.Estimator
	logger    *slog.Logger
}

// New creates a Chunker using the given token estimator.
func New(cfg Config, est token.Estimator, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	overlap := cfg.Overlap
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxTokens {
		// A non-advancing window would loop forever.
		overlap = maxTokens / 4
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlap, est: est, logger: logger}
}

// Split chunks one section. Text blocks are concatenated and split with
// overlap; each table block becomes a single atomic chunk after the
// text, mirroring block order within the section. Chunk metadata beyond
// section identity (ticker, dates, topics, index) is filled in by the
// caller.
func (c *Chunker) Split(section filing.Section) []filing.Chunk {
	var chunks []filing.Chunk

	base := filing.Chunk{
		SectionName: section.Name,
		ItemCode:    section.ItemCode,
		Category:    section.Category,
	}

	if text := strings.TrimSpace(section.Text()); text != "" {
		for _, piece := range c.splitText(text) {
			ch := base
			ch.Text = piece.text
			ch.TokenCount = piece.tokens
			chunks = append(chunks, ch)
		}
	}

	for _, table := range section.Tables() {
		ch := base
		ch.Text = table
		ch.TokenCount = c.est.Count(table)
		ch.IsTable = true
		chunks = append(chunks, ch)
	}

	return chunks
}

// SplitAll chunks every section of a filing in order and assigns
// sequential chunk indexes across the whole document.
func (c *Chunker) SplitAll(sections []filing.Section) []filing.Chunk {
	var chunks []filing.Chunk
	for _, s := range sections {
		chunks = append(chunks, c.Split(s)...)
	}
	tables := 0
	for i := range chunks {
		chunks[i].Index = i
		if chunks[i].IsTable {
			tables++
		}
	}
	c.logger.Debug("chunked filing",
		"sections", len(sections),
		"chunks", len(chunks),
		"tables", tables)
	return chunks
}

type piece struct {
	text   string
	tokens int
}

// splitText slices text on token boundaries. The window advances by
// maxTokens-overlap so each chunk repeats the tail of its predecessor.
func (c *Chunker) splitText(text string) []piece {
	ids := c.est.Encode(text)
	total := len(ids)

	if total <= c.maxTokens {
		return []piece{{text: text, tokens: total}}
	}

	var pieces []piece
	step := c.maxTokens - c.overlap
	for start := 0; start < total; start += step {
		end := start + c.maxTokens
		if end > total {
			end = total
		}
		slice := ids[start:end]
		decoded := strings.TrimSpace(c.est.Decode(slice))
		if decoded != "" {
			pieces = append(pieces, piece{text: decoded, tokens: len(slice)})
		}
		if end == total {
			break
		}
	}
	return pieces
}
