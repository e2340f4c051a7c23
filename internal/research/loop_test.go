package research

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"go.uber.org/goleak"

	"github.com/investron/investron/internal/filing"
	"github.com/investron/investron/internal/testutil"
	"github.com/investron/investron/internal/vectorstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedCaller struct {
	responses []*ai.ModelResponse
	err       error
	calls     int
}

func (c *scriptedCaller) generate(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	i := c.calls - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

type queryEmbedder struct {
	err     error
	queries []string
}

func (e *queryEmbedder) EmbedQuery(_ context.Context, query string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.queries = append(e.queries, query)
	return []float32{1, 0}, nil
}

type scriptedStore struct {
	results []vectorstore.Result
	err     error
	calls   int
}

func (s *scriptedStore) Search(_ context.Context, _ string, _ []float32, _ ...vectorstore.SearchOption) ([]vectorstore.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func textResponse(text string) *ai.ModelResponse {
	return &ai.ModelResponse{Message: &ai.Message{
		Role:    ai.RoleModel,
		Content: []*ai.Part{ai.NewTextPart(text)},
	}}
}

func toolCallResponse(query string) *ai.ModelResponse {
	return &ai.ModelResponse{Message: &ai.Message{
		Role: ai.RoleModel,
		Content: []*ai.Part{
			ai.NewToolRequestPart(&ai.ToolRequest{
				Name:  searchToolName,
				Input: map[string]any{"query": query},
			}),
		},
	}}
}

func result(text string, tokens int, date string) vectorstore.Result {
	d, _ := time.Parse("2006-01-02", date)
	return vectorstore.Result{
		Chunk: filing.Chunk{
			FilingType:  filing.Type10K,
			FilingDate:  d,
			SectionName: "Item 1A - Risk Factors",
			Text:        text,
			TokenCount:  tokens,
		},
		Similarity: 0.9,
	}
}

func newTestLoop(caller modelCaller, embedder Embedder, store SearchStore, cfg Config) *Loop {
	return newLoop(caller, embedder, store, testutil.NewWordEstimator(), cfg, testutil.DiscardLogger())
}

func collectEvents(l *Loop, ticker, question string) []Event {
	var events []Event
	l.Stream(context.Background(), ticker, question, nil,
		func(e Event) { events = append(events, e) })
	return events
}

func eventsOfType(events []Event, t EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestStreamDirectAnswer(t *testing.T) {
	caller := &scriptedCaller{responses: []*ai.ModelResponse{
		textResponse("Apple's revenue grew 2% in fiscal 2024."),
	}}
	store := &scriptedStore{}
	l := newTestLoop(caller, &queryEmbedder{}, store, Config{})

	events := collectEvents(l, "aapl", "How did revenue change?")

	done := eventsOfType(events, EventDone)
	if len(done) != 1 || done[0].Content != "Apple's revenue grew 2% in fiscal 2024." {
		t.Fatalf("done events = %v", done)
	}
	if caller.calls != 1 {
		t.Errorf("model called %d times, want 1", caller.calls)
	}
	if store.calls != 0 {
		t.Errorf("store searched %d times for a direct answer", store.calls)
	}
}

func TestStreamToolRoundThenAnswer(t *testing.T) {
	caller := &scriptedCaller{responses: []*ai.ModelResponse{
		toolCallResponse("supply chain risks"),
		textResponse("Key risks include supplier concentration."),
	}}
	embedder := &queryEmbedder{}
	store := &scriptedStore{results: []vectorstore.Result{
		result("Concentration of suppliers in one region.", 6, "2025-01-15"),
	}}
	l := newTestLoop(caller, embedder, store, Config{})

	events := collectEvents(l, "AAPL", "What are the risks?")

	if caller.calls != 2 {
		t.Fatalf("model called %d times, want 2", caller.calls)
	}
	if store.calls != 1 {
		t.Fatalf("store searched %d times, want 1", store.calls)
	}
	if len(embedder.queries) != 1 || embedder.queries[0] != "supply chain risks" {
		t.Errorf("embedded queries = %v", embedder.queries)
	}

	statuses := eventsOfType(events, EventStatus)
	if len(statuses) != 1 || !strings.Contains(statuses[0].Content, "supply chain risks") {
		t.Errorf("status events = %v", statuses)
	}
	done := eventsOfType(events, EventDone)
	if len(done) != 1 || done[0].Content != "Key risks include supplier concentration." {
		t.Errorf("done events = %v", done)
	}
}

func TestStreamForcesAnswerAfterRoundBudget(t *testing.T) {
	caller := &scriptedCaller{responses: []*ai.ModelResponse{
		toolCallResponse("query one"),
		toolCallResponse("query two"),
		textResponse("Best answer from gathered context."),
	}}
	store := &scriptedStore{}
	l := newTestLoop(caller, &queryEmbedder{}, store, Config{MaxRounds: 2})

	events := collectEvents(l, "AAPL", "Tell me everything.")

	// Two tool rounds plus the forced no-tool call.
	if caller.calls != 3 {
		t.Fatalf("model called %d times, want 3", caller.calls)
	}
	if store.calls != 2 {
		t.Errorf("store searched %d times, want 2", store.calls)
	}

	var composing bool
	for _, e := range eventsOfType(events, EventStatus) {
		if e.Content == "composing answer" {
			composing = true
		}
	}
	if !composing {
		t.Error("no composing status before the forced final call")
	}
	done := eventsOfType(events, EventDone)
	if len(done) != 1 || done[0].Content != "Best answer from gathered context." {
		t.Errorf("done events = %v", done)
	}
}

func TestStreamModelFailure(t *testing.T) {
	caller := &scriptedCaller{err: errors.New("model unavailable")}
	l := newTestLoop(caller, &queryEmbedder{}, &scriptedStore{}, Config{})

	events := collectEvents(l, "AAPL", "anything")

	errs := eventsOfType(events, EventError)
	if len(errs) != 1 || !strings.Contains(errs[0].Content, "model unavailable") {
		t.Fatalf("error events = %v", errs)
	}
	if len(eventsOfType(events, EventDone)) != 0 {
		t.Error("done event after failure")
	}
}

func TestExecuteSearchFailuresReturnToolText(t *testing.T) {
	noop := func(Event) {}

	t.Run("missing query", func(t *testing.T) {
		l := newTestLoop(&scriptedCaller{}, &queryEmbedder{}, &scriptedStore{}, Config{})
		out := l.executeSearch(context.Background(), "AAPL", map[string]any{}, noop)
		if !strings.HasPrefix(out, "Search failed:") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("embedding failure", func(t *testing.T) {
		l := newTestLoop(&scriptedCaller{}, &queryEmbedder{err: errors.New("boom")}, &scriptedStore{}, Config{})
		out := l.executeSearch(context.Background(), "AAPL",
			map[string]any{"query": "risks"}, noop)
		if !strings.Contains(out, "could not process the query") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		store := &scriptedStore{err: errors.New("connection refused")}
		l := newTestLoop(&scriptedCaller{}, &queryEmbedder{}, store, Config{})
		out := l.executeSearch(context.Background(), "AAPL",
			map[string]any{"query": "risks"}, noop)
		if !strings.Contains(out, "index is unavailable") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("no results", func(t *testing.T) {
		l := newTestLoop(&scriptedCaller{}, &queryEmbedder{}, &scriptedStore{}, Config{})
		out := l.executeSearch(context.Background(), "AAPL",
			map[string]any{"query": "risks"}, noop)
		if out != noResultsMessage {
			t.Errorf("output = %q", out)
		}
	})
}

func TestSelectWithinBudget(t *testing.T) {
	l := newTestLoop(&scriptedCaller{}, &queryEmbedder{}, &scriptedStore{},
		Config{TopK: 3, TokenBudget: 100})

	results := []vectorstore.Result{
		result("a", 40, "2025-01-01"),
		result("b", 50, "2025-01-01"),
		result("c", 40, "2025-01-01"), // would exceed the budget, tail dropped here
		result("d", 5, "2025-01-01"),  // fits but comes after the cutoff
	}

	selected := l.selectWithinBudget(results)
	got := make([]string, len(selected))
	for i, r := range selected {
		got[i] = r.Chunk.Text
	}
	if strings.Join(got, "") != "ab" {
		t.Errorf("selected = %v, want [a b]", got)
	}
}

func TestSelectWithinBudgetKeepsOversizedTopResult(t *testing.T) {
	l := newTestLoop(&scriptedCaller{}, &queryEmbedder{}, &scriptedStore{},
		Config{TopK: 3, TokenBudget: 100})

	results := []vectorstore.Result{
		result("a", 500, "2025-01-01"), // alone over budget, still kept
		result("b", 10, "2025-01-01"),
	}

	selected := l.selectWithinBudget(results)
	if len(selected) != 1 || selected[0].Chunk.Text != "a" {
		t.Errorf("selected = %+v, want only the top result", selected)
	}
}

func TestSelectWithinBudgetStopsAtTopK(t *testing.T) {
	l := newTestLoop(&scriptedCaller{}, &queryEmbedder{}, &scriptedStore{},
		Config{TopK: 2, TokenBudget: 1000})

	results := []vectorstore.Result{
		result("a", 10, "2025-01-01"),
		result("b", 10, "2025-01-01"),
		result("c", 10, "2025-01-01"),
	}
	if got := len(l.selectWithinBudget(results)); got != 2 {
		t.Errorf("selected %d results, want 2", got)
	}
}

func TestSelectWithinBudgetCountsUnsizedChunks(t *testing.T) {
	l := newTestLoop(&scriptedCaller{}, &queryEmbedder{}, &scriptedStore{},
		Config{TopK: 5, TokenBudget: 10})

	results := []vectorstore.Result{
		result("small chunk here", 4, "2025-01-01"),
		// Seven words exceed the remaining budget once counted.
		result("one two three four five six seven", 0, "2025-01-01"),
	}
	if got := len(l.selectWithinBudget(results)); got != 1 {
		t.Errorf("selected %d results, want 1 after estimating the unsized chunk", got)
	}
}

func TestFormatResults(t *testing.T) {
	table := result("Year | Revenue", 3, "2025-01-15")
	table.Chunk.IsTable = true

	out := formatResults([]vectorstore.Result{
		result("Risk text.", 2, "2025-01-15"),
		table,
	})

	if !strings.Contains(out, "--- From 10-K filed 2025-01-15 | Item 1A - Risk Factors ---") {
		t.Errorf("missing provenance header: %q", out)
	}
	if !strings.Contains(out, "[Table]\nYear | Revenue") {
		t.Errorf("missing table marker: %q", out)
	}
	if strings.Count(out, "---\n") != 2 {
		t.Errorf("expected 2 excerpt headers: %q", out)
	}
}

func TestDecodeSearchArgs(t *testing.T) {
	args, err := decodeSearchArgs(map[string]any{
		"query":        "cash position",
		"filing_types": []any{"10-Q"},
		"min_date":     "2024-01-01",
	})
	if err != nil {
		t.Fatalf("decodeSearchArgs: %v", err)
	}
	if args.Query != "cash position" || len(args.FilingTypes) != 1 || args.MinDate != "2024-01-01" {
		t.Errorf("args = %+v", args)
	}

	if _, err := decodeSearchArgs(map[string]any{"filing_types": []any{"10-K"}}); err == nil {
		t.Error("expected error for missing query")
	}
}

func TestSearchArgsOptionsDropInvalidValues(t *testing.T) {
	args := SearchArgs{
		Query:       "q",
		FilingTypes: []string{"S-1", "10-K"},
		Categories:  []string{"not_a_category", "risk_factors"},
		MinDate:     "not-a-date",
	}
	// Limit, one surviving type filter, one surviving category filter;
	// the malformed date is dropped.
	if got := len(args.options(10)); got != 3 {
		t.Errorf("options = %d, want 3", got)
	}

	bare := SearchArgs{Query: "q"}
	if got := len(bare.options(10)); got != 1 {
		t.Errorf("bare options = %d, want 1", got)
	}
}
