package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// extractTables lifts every <table> element out of the document, renders
// it to aligned plain text, and replaces it in the DOM with a positional
// placeholder so boundary detection still sees where it sat. Tables that
// render below minTableChars are layout scaffolding, not data, and are
// dropped outright.
//
// The document is modified in place. Returns rendered table text keyed
// by placeholder index.
func extractTables(doc *goquery.Document) map[int]string {
	tables := make(map[int]string)
	doc.Find("table").Each(func(idx int, sel *goquery.Selection) {
		rendered := renderTable(sel)
		if len(rendered) < minTableChars {
			sel.Remove()
			return
		}
		tables[idx] = rendered
		sel.ReplaceWithHtml("<p>" + fmt.Sprintf(tablePlaceholder, idx) + "</p>")
	})
	return tables
}

// renderTable converts a table selection to plain text with pipes
// between cells and columns padded to their widest cell, so row/column
// alignment survives into the chunk text.
func renderTable(sel *goquery.Selection) string {
	var rows [][]string
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, collapseSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return ""
	}

	// Column widths across all rows.
	var widths []int
	for _, row := range rows {
		for i, c := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	var b strings.Builder
	for _, row := range rows {
		for i, c := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(c)
			if pad := widths[i] - len(c); pad > 0 && i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	spaceRun     = regexp.MustCompile(`[ \t]+`)
	blankLineRun = regexp.MustCompile(`\n{4,}`)
	tocLine      = regexp.MustCompile(`(?i)table of contents?\s*\n`)
)

// cleanText converts the remaining document to plain text, preserving
// paragraph structure while collapsing the whitespace noise typical of
// EDGAR markup.
func cleanText(doc *goquery.Document) string {
	doc.Find("script,style,meta,link,noscript").Remove()

	var text string
	if body := doc.Find("body"); body.Length() > 0 {
		text = blockText(body)
	} else {
		text = blockText(doc.Selection)
	}

	text = spaceRun.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLineRun.ReplaceAllString(text, "\n\n\n")
	text = tocLine.ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}

// blockElements are the elements that imply a line break around their
// content when flattening markup to text. goquery's Text() concatenates
// text nodes without separators, which would glue adjacent paragraphs
// (and item headers) together.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true,
}

// blockText extracts text with newlines between block-level elements.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		isBlock := n.Type == html.ElementNode && blockElements[n.Data]
		if isBlock {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if isBlock {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
