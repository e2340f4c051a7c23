// Package filing defines the domain model for SEC filing documents:
// filing types, parsed sections, and embedding-ready chunks.
//
// Filing types are modeled as a small tagged variant rather than free-form
// strings so that per-type behavior (section taxonomy, indexing limits)
// lives in lookup tables keyed by the variant.
package filing

import "time"

// Type identifies the kind of SEC report a document belongs to.
type Type string

// Supported filing types.
const (
	// Type10K is the annual report.
	Type10K Type = "10-K"

	// Type10Q is the quarterly report.
	Type10Q Type = "10-Q"

	// Type8K is the current report (material events).
	Type8K Type = "8-K"
)

// Types lists all supported filing types in indexing order.
func Types() []Type {
	return []Type{Type10K, Type10Q, Type8K}
}

// ParseType normalizes a filing type string ("10-K", "10k", "10K") to a
// Type. Returns false if the string matches no supported type.
func ParseType(s string) (Type, bool) {
	switch normalizeType(s) {
	case "10K":
		return Type10K, true
	case "10Q":
		return Type10Q, true
	case "8K":
		return Type8K, true
	}
	return "", false
}

func normalizeType(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '-' || c == ' ':
			continue
		case 'a' <= c && c <= 'z':
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Ref identifies one filing available from a document source, before its
// content has been fetched.
type Ref struct {
	Ticker          string
	Type            Type
	Date            time.Time
	AccessionNumber string
	URL             string
}

// Document is one fetched filing: raw markup plus source metadata.
// It exists only for the duration of an indexing run.
type Document struct {
	Ticker    string
	Type      Type
	Date      time.Time
	SourceURL string
	HTML      string
}

// BlockKind distinguishes the two kinds of section content.
type BlockKind int

const (
	// TextBlock is a span of running text.
	TextBlock BlockKind = iota

	// TableBlock is a table rendered to structure-preserving plain text.
	// Table blocks are never split by the chunker.
	TableBlock
)

// Block is one content unit within a section.
type Block struct {
	Kind BlockKind
	Text string
}

// Section is a structurally delimited portion of a filing corresponding
// to a regulatory item. Sections are non-overlapping and ordered as they
// appear in the source document.
type Section struct {
	ItemCode string // e.g. "1A", "P1-2", "2.02", or "full_document"
	Name     string // e.g. "Item 1A - Risk Factors"
	Category string // controlled vocabulary, see taxonomy.go
	Blocks   []Block
}

// Text returns the concatenated text blocks of the section, separated by
// blank lines. Table blocks are excluded.
func (s Section) Text() string {
	var n int
	for _, b := range s.Blocks {
		if b.Kind == TextBlock {
			n++
		}
	}
	if n == 0 {
		return ""
	}
	out := make([]byte, 0, 256)
	for _, b := range s.Blocks {
		if b.Kind != TextBlock {
			continue
		}
		if len(out) > 0 {
			out = append(out, "\n\n"...)
		}
		out = append(out, b.Text...)
	}
	return string(out)
}

// Tables returns the rendered table blocks of the section in order.
func (s Section) Tables() []string {
	var tables []string
	for _, b := range s.Blocks {
		if b.Kind == TableBlock {
			tables = append(tables, b.Text)
		}
	}
	return tables
}

// Chunk is one token-bounded unit of filing text, or one whole table,
// tagged with retrieval metadata and (once generated) an embedding
// vector. Chunks are immutable after embedding; re-indexing a ticker
// replaces its whole chunk set.
type Chunk struct {
	Ticker      string
	FilingType  Type
	FilingDate  time.Time
	SectionName string
	ItemCode    string
	Category    string
	Topics      []string
	Index       int // position within the filing
	Text        string
	TokenCount  int
	IsTable     bool
	Embedding   []float32
}
