// Package parser converts raw SEC filing markup into an ordered sequence
// of labeled sections with extracted tables.
//
// 10-K and 10-Q items are standardized by SEC Regulation S-K, and 8-K
// items by the current report form instructions, so section boundaries
// can be detected with header patterns on the cleaned document text.
// Tables are lifted out of the text flow before boundary detection and
// rendered to a plain-text form that keeps row/column alignment, so they
// can later be stored as standalone chunks.
package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/investron/investron/internal/filing"
)

// DefaultMinSections is the detection threshold below which a document
// is treated as unsectioned and indexed as a single synthetic section.
// The value is empirical; it is configurable via Config.MinSections and
// should not be assumed universally correct.
const DefaultMinSections = 2

// minSectionChars filters out detected sections that are just a header
// with no body (typically table-of-contents stubs).
const minSectionChars = 50

// minTableChars filters out tiny tables, which are almost always layout
// or navigation scaffolding rather than data.
const minTableChars = 30

// itemPattern matches section headers like "Item 1A.", "ITEM 7 -",
// "Item 2.02:" at the start of a line and captures the item number.
var itemPattern = regexp.MustCompile(`(?m)(?:^|\n)[ \t]*(?:ITEM|Item)\s+(\d+(?:\.\d{2})?[A-Ca-c]?)\s*[.:\-—\s]`)

// tablePlaceholder marks where a table sat in the text flow while
// boundaries are detected. The marker survives text cleanup because it
// contains no whitespace.
const tablePlaceholder = "[[FILING-TABLE-%d]]"

// Config controls parsing behavior.
type Config struct {
	// MinSections is the minimum number of detected sections required
	// before the structured result is trusted. Below it, the whole
	// document becomes one section with category "general".
	// Zero means DefaultMinSections.
	MinSections int
}

// Parser converts filing markup into sections.
type Parser struct {
	minSections int
	logger      *slog.Logger
}

// New creates a Parser. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	min := cfg.MinSections
	if min <= 0 {
		min = DefaultMinSections
	}
	return &Parser{minSections: min, logger: logger}
}

// Parse splits a filing document into ordered, non-overlapping sections.
//
// If fewer than the configured minimum of sections is detected, the
// entire document is returned as a single section with category
// "general". That fallback is a policy decision, not an error: partial
// indexing beats a hard failure, and Parse only returns an error when
// the markup itself cannot be read.
func (p *Parser) Parse(html string, ft filing.Type) ([]filing.Section, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("reading filing markup: %w", err)
	}

	tables := extractTables(doc)
	text := cleanText(doc)

	sections := p.detectSections(text, ft, tables)
	if len(sections) >= p.minSections {
		codes := make([]string, len(sections))
		for i, s := range sections {
			codes[i] = s.ItemCode
		}
		p.logger.Info("parsed filing",
			"filing_type", ft,
			"sections", len(sections),
			"items", strings.Join(codes, ","))
		return sections, nil
	}

	p.logger.Warn("section detection below threshold, using single-section fallback",
		"filing_type", ft,
		"detected", len(sections),
		"min_sections", p.minSections)

	return []filing.Section{fallbackSection(text, tables)}, nil
}

// detectSections finds item headers in the cleaned text and slices the
// document between them. For each part-qualified item number only the
// last occurrence is kept: the first is usually the table of contents
// entry, the last is the section itself.
func (p *Parser) detectSections(text string, ft filing.Type, tables map[int]string) []filing.Section {
	taxonomy := filing.Items(ft)
	if len(taxonomy) == 0 {
		return nil
	}

	matches := itemPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	type header struct {
		code       string
		start, end int // match bounds in text
	}
	// Dedup by the part-qualified code: 10-Q item numbers repeat across
	// Part I and Part II, so "Item 2" in each part is a distinct section.
	last := make(map[string]header)
	for _, m := range matches {
		raw := strings.ToUpper(text[m[2]:m[3]])
		code := itemCodeFor(ft, raw, text[:m[0]])
		last[code] = header{code: code, start: m[0], end: m[1]}
	}

	headers := make([]header, 0, len(last))
	for _, h := range last {
		headers = append(headers, h)
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].start < headers[j].start })

	var sections []filing.Section
	for i, h := range headers {
		info, ok := filing.LookupItem(ft, h.code)
		if !ok {
			continue
		}

		bodyEnd := len(text)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1].start
		}
		body := strings.TrimSpace(text[h.end:bodyEnd])
		blocks, textLen := splitBlocks(body, tables)
		if textLen < minSectionChars && len(blocks) == countText(blocks) {
			// Header with no real body and no tables.
			continue
		}

		sections = append(sections, filing.Section{
			ItemCode: h.code,
			Name:     info.Name,
			Category: info.Category,
			Blocks:   blocks,
		})
	}
	return sections
}

// itemCodeFor maps a raw captured item number to the taxonomy key. For
// 10-Q filings item numbers repeat between Part I and Part II, so the
// code is prefixed with the part last announced before the header.
func itemCodeFor(ft filing.Type, raw, preceding string) string {
	if ft != filing.Type10Q {
		return raw
	}
	part := "P1"
	if i := strings.LastIndex(strings.ToUpper(preceding), "PART II"); i >= 0 {
		if j := strings.LastIndex(strings.ToUpper(preceding), "PART I"); j <= i {
			part = "P2"
		}
	}
	return part + "-" + raw
}

// splitBlocks turns a section body into ordered content blocks,
// resolving table placeholders into table blocks. Returns the blocks and
// the total length of text content.
func splitBlocks(body string, tables map[int]string) ([]filing.Block, int) {
	var blocks []filing.Block
	textLen := 0

	appendText := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		blocks = append(blocks, filing.Block{Kind: filing.TextBlock, Text: s})
		textLen += len(s)
	}

	rest := body
	for {
		start := strings.Index(rest, "[[FILING-TABLE-")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "]]")
		if end < 0 {
			break
		}
		end += start + 2

		var idx int
		if _, err := fmt.Sscanf(rest[start:end], "[[FILING-TABLE-%d]]", &idx); err == nil {
			appendText(rest[:start])
			if t, ok := tables[idx]; ok {
				blocks = append(blocks, filing.Block{Kind: filing.TableBlock, Text: t})
			}
		} else {
			appendText(rest[:end])
		}
		rest = rest[end:]
	}
	appendText(rest)

	return blocks, textLen
}

func countText(blocks []filing.Block) int {
	n := 0
	for _, b := range blocks {
		if b.Kind == filing.TextBlock {
			n++
		}
	}
	return n
}

// fallbackSection wraps the whole document in one synthetic section.
func fallbackSection(text string, tables map[int]string) filing.Section {
	blocks, _ := splitBlocks(text, tables)
	return filing.Section{
		ItemCode: "full_document",
		Name:     "Full Document",
		Category: filing.CategoryGeneral,
		Blocks:   blocks,
	}
}
