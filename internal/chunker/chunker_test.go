package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/investron/investron/internal/filing"
	"github.com/investron/investron/internal/testutil"
)

// words generates n distinct space-separated words.
func words(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(out, " ")
}

func textSection(text string) filing.Section {
	return filing.Section{
		ItemCode: "1A",
		Name:     "Item 1A - Risk Factors",
		Category: filing.CategoryRiskFactors,
		Blocks:   []filing.Block{{Kind: filing.TextBlock, Text: text}},
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	c := New(Config{MaxTokens: 100, Overlap: 10}, testutil.NewWordEstimator(), testutil.DiscardLogger())

	chunks := c.Split(textSection(words(40)))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].TokenCount != 40 {
		t.Errorf("TokenCount = %d, want 40", chunks[0].TokenCount)
	}
	if chunks[0].IsTable {
		t.Error("text chunk marked as table")
	}
	if chunks[0].Category != filing.CategoryRiskFactors {
		t.Errorf("chunk lost section category: %q", chunks[0].Category)
	}
}

func TestSplitLongTextOverlaps(t *testing.T) {
	est := testutil.NewWordEstimator()
	c := New(Config{MaxTokens: 100, Overlap: 10}, est, testutil.DiscardLogger())

	chunks := c.Split(textSection(words(250)))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantTokens := []int{100, 100, 70}
	for i, want := range wantTokens {
		if chunks[i].TokenCount != want {
			t.Errorf("chunk %d tokens = %d, want %d", i, chunks[i].TokenCount, want)
		}
		if got := est.Count(chunks[i].Text); got != want {
			t.Errorf("chunk %d recount = %d, want %d", i, got, want)
		}
	}

	// Consecutive chunks share the overlap region.
	for i := 0; i < len(chunks)-1; i++ {
		tail := strings.Fields(chunks[i].Text)
		head := strings.Fields(chunks[i+1].Text)
		for j := 0; j < 10; j++ {
			if tail[len(tail)-10+j] != head[j] {
				t.Fatalf("chunks %d/%d do not overlap at word %d: %q vs %q",
					i, i+1, j, tail[len(tail)-10+j], head[j])
			}
		}
	}
}

func TestSplitTableNeverSplit(t *testing.T) {
	c := New(Config{MaxTokens: 100, Overlap: 10}, testutil.NewWordEstimator(), testutil.DiscardLogger())

	section := filing.Section{
		ItemCode: "8",
		Name:     "Item 8 - Financial Statements",
		Category: filing.CategoryFinancialStatements,
		Blocks: []filing.Block{
			{Kind: filing.TableBlock, Text: words(2000)},
		},
	}

	chunks := c.Split(section)
	if len(chunks) != 1 {
		t.Fatalf("table split into %d chunks, want 1", len(chunks))
	}
	if !chunks[0].IsTable {
		t.Error("table chunk not flagged")
	}
	if chunks[0].TokenCount != 2000 {
		t.Errorf("table TokenCount = %d, want 2000", chunks[0].TokenCount)
	}
}

func TestSplitAllSequentialIndexes(t *testing.T) {
	c := New(Config{MaxTokens: 100, Overlap: 10}, testutil.NewWordEstimator(), testutil.DiscardLogger())

	sections := []filing.Section{
		textSection(words(250)), // 3 chunks
		{
			ItemCode: "8",
			Name:     "Item 8 - Financial Statements",
			Category: filing.CategoryFinancialStatements,
			Blocks: []filing.Block{
				{Kind: filing.TextBlock, Text: words(40)},
				{Kind: filing.TableBlock, Text: words(500)},
			},
		},
	}

	chunks := c.SplitAll(sections)
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
	}
	if !chunks[4].IsTable {
		t.Error("last chunk should be the table")
	}
	// Chunks never mix sections.
	if chunks[2].ItemCode != "1A" || chunks[3].ItemCode != "8" {
		t.Errorf("section boundary not respected: %q/%q", chunks[2].ItemCode, chunks[3].ItemCode)
	}
}

func TestSplitAllDefaultSizing(t *testing.T) {
	est := testutil.NewWordEstimator()
	c := New(Config{MaxTokens: 512, Overlap: 50}, est, testutil.DiscardLogger())

	sections := []filing.Section{
		textSection(words(600)),
		{
			ItemCode: "8",
			Name:     "Item 8 - Financial Statements",
			Category: filing.CategoryFinancialStatements,
			Blocks:   []filing.Block{{Kind: filing.TableBlock, Text: words(2000)}},
		},
		{
			ItemCode: "9A",
			Name:     "Item 9A - Controls and Procedures",
			Category: filing.CategoryRegulatory,
			Blocks:   []filing.Block{{Kind: filing.TextBlock, Text: ""}},
		},
	}

	chunks := c.SplitAll(sections)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	// 600 tokens at cap 512 with 50 overlap: 512 then the remaining 138.
	if chunks[0].TokenCount != 512 || chunks[1].TokenCount != 138 {
		t.Errorf("text chunk tokens = %d/%d, want 512/138",
			chunks[0].TokenCount, chunks[1].TokenCount)
	}
	tail := strings.Fields(chunks[0].Text)
	head := strings.Fields(chunks[1].Text)
	if tail[len(tail)-50] != head[0] {
		t.Errorf("chunks do not overlap by 50 tokens: %q vs %q",
			tail[len(tail)-50], head[0])
	}

	if !chunks[2].IsTable || chunks[2].TokenCount != 2000 {
		t.Errorf("table chunk = %+v, want whole 2000-token table", chunks[2])
	}
}

func TestNewClampsPathologicalOverlap(t *testing.T) {
	c := New(Config{MaxTokens: 100, Overlap: 150}, testutil.NewWordEstimator(), testutil.DiscardLogger())

	// Must terminate and produce forward progress.
	chunks := c.Split(textSection(words(300)))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
}
