// Package research answers analyst questions about a company by
// running a bounded agentic loop: the model may call a filing search
// tool a limited number of times before it must produce a final,
// streamed answer grounded in the retrieved excerpts.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/investron/investron/internal/token"
	"github.com/investron/investron/internal/vectorstore"
)

// Defaults for the loop.
const (
	// DefaultMaxRounds caps how many tool-calling rounds the model gets
	// before it is forced to answer with what it has.
	DefaultMaxRounds = 3

	// DefaultTopK is the number of excerpts one search may return.
	DefaultTopK = 6

	// DefaultTokenBudget caps the total tokens of excerpts returned by
	// one search, so tool output cannot blow up the model context.
	DefaultTokenBudget = 8000
)

const systemPrompt = `You are a financial research assistant analyzing SEC filings for %s.

Use the search_filings tool to find relevant excerpts before answering.
Ground every claim in retrieved filing content and mention which filing
(type and date) it came from. If the filings do not contain the answer,
say so plainly. Do not speculate beyond the retrieved excerpts.`

// EventType classifies stream events.
type EventType string

const (
	// EventStatus reports loop progress, e.g. a search being executed.
	EventStatus EventType = "status"

	// EventToken carries a streamed fragment of the final answer.
	EventToken EventType = "token"

	// EventDone carries the complete final answer and ends the stream.
	EventDone EventType = "done"

	// EventError reports a failure and ends the stream.
	EventError EventType = "error"
)

// Event is one unit of the research response stream.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// Message is one turn of prior conversation supplied by the caller.
type Message struct {
	Role    string `json:"role"` // "user" or "model"
	Content string `json:"content"`
}

// Embedder embeds a search query.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// SearchStore serves similarity search over a ticker's chunks.
type SearchStore interface {
	Search(ctx context.Context, ticker string, query []float32, opts ...vectorstore.SearchOption) ([]vectorstore.Result, error)
}

// modelCaller is the seam between the loop and the model service.
type modelCaller interface {
	generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

type genkitCaller struct {
	g *genkit.Genkit
}

func (c *genkitCaller) generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	return genkit.Generate(ctx, c.g, opts...)
}

// Config controls the loop.
type Config struct {
	// Model is the chat model name, e.g. "googleai/gemini-2.5-flash".
	Model string

	// MaxRounds overrides DefaultMaxRounds when positive.
	MaxRounds int

	// TopK overrides DefaultTopK when positive.
	TopK int

	// TokenBudget overrides DefaultTokenBudget when positive.
	TokenBudget int
}

// Loop runs bounded tool-assisted research over indexed filings.
type Loop struct {
	caller      modelCaller
	tool        ai.Tool
	embedder    Embedder
	store       SearchStore
	est         token.Estimator
	model       string
	maxRounds   int
	topK        int
	tokenBudget int
	logger      *slog.Logger
}

// New creates a Loop bound to a Genkit instance.
func New(g *genkit.Genkit, embedder Embedder, store SearchStore, est token.Estimator, cfg Config, logger *slog.Logger) *Loop {
	l := newLoop(&genkitCaller{g: g}, embedder, store, est, cfg, logger)
	l.tool = defineSearchTool(g)
	return l
}

func newLoop(caller modelCaller, embedder Embedder, store SearchStore, est token.Estimator, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Loop{
		caller:      caller,
		embedder:    embedder,
		store:       store,
		est:         est,
		model:       cfg.Model,
		maxRounds:   maxRounds,
		topK:        topK,
		tokenBudget: budget,
		logger:      logger,
	}
}

// Stream answers a question about one ticker, emitting events as the
// loop progresses. The final answer arrives as token events followed by
// one done event carrying the full text. Stream always ends the stream
// itself, with either a done or an error event.
func (l *Loop) Stream(ctx context.Context, ticker, question string, history []Message, emit func(Event)) {
	ticker = strings.ToUpper(ticker)

	messages := historyMessages(history)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(question)))

	for round := 0; round < l.maxRounds; round++ {
		resp, err := l.generate(ctx, ticker, messages, true, emit)
		if err != nil {
			emit(Event{Type: EventError, Content: err.Error()})
			return
		}

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			emit(Event{Type: EventDone, Content: resp.Text()})
			return
		}

		messages = append(messages, resp.Message)
		for _, req := range requests {
			output := l.executeSearch(ctx, ticker, req.Input, emit)
			messages = append(messages, &ai.Message{
				Role: ai.RoleTool,
				Content: []*ai.Part{
					ai.NewToolResponsePart(&ai.ToolResponse{
						Name:   req.Name,
						Ref:    req.Ref,
						Output: output,
					}),
				},
			})
		}
	}

	// Round budget exhausted: one last call without tools forces a
	// final answer from the context gathered so far.
	emit(Event{Type: EventStatus, Content: "composing answer"})
	resp, err := l.generate(ctx, ticker, messages, false, emit)
	if err != nil {
		emit(Event{Type: EventError, Content: err.Error()})
		return
	}
	emit(Event{Type: EventDone, Content: resp.Text()})
}

// generate runs one model call, streaming text fragments as token
// events. Fragments belonging to tool-call responses carry no text, so
// only answer content reaches the stream.
func (l *Loop) generate(ctx context.Context, ticker string, messages []*ai.Message, withTools bool, emit func(Event)) (*ai.ModelResponse, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(l.model),
		ai.WithSystem(fmt.Sprintf(systemPrompt, ticker)),
		ai.WithMessages(messages...),
		ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if text := chunk.Text(); text != "" {
				emit(Event{Type: EventToken, Content: text})
			}
			return nil
		}),
	}
	if withTools && l.tool != nil {
		opts = append(opts,
			ai.WithTools(l.tool),
			ai.WithReturnToolRequests(true),
		)
	}

	resp, err := l.caller.generate(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	return resp, nil
}

// executeSearch runs one search_filings call. Failures are reported to
// the model as tool output rather than aborting the stream: the model
// can rephrase or answer without the search.
func (l *Loop) executeSearch(ctx context.Context, ticker string, input any, emit func(Event)) string {
	args, err := decodeSearchArgs(input)
	if err != nil {
		l.logger.Warn("invalid search arguments", "ticker", ticker, "error", err)
		return "Search failed: " + err.Error()
	}

	emit(Event{Type: EventStatus, Content: "searching filings: " + args.Query})
	l.logger.Debug("executing filing search", "ticker", ticker, "query", args.Query)

	vector, err := l.embedder.EmbedQuery(ctx, args.Query)
	if err != nil {
		l.logger.Warn("query embedding failed", "ticker", ticker, "error", err)
		return "Search failed: could not process the query."
	}

	results, err := l.store.Search(ctx, ticker, vector, args.options(l.topK)...)
	if err != nil {
		l.logger.Warn("filing search failed", "ticker", ticker, "error", err)
		return "Search failed: the filing index is unavailable."
	}

	selected := l.selectWithinBudget(results)
	return formatResults(selected)
}

// selectWithinBudget keeps results in similarity order until either the
// excerpt count reaches topK or the token budget is exhausted. The tail
// is dropped at the first result that would exceed the budget; the top
// result is always kept, even when it alone is over budget, so a search
// never comes back empty-handed for budget reasons.
func (l *Loop) selectWithinBudget(results []vectorstore.Result) []vectorstore.Result {
	var selected []vectorstore.Result
	used := 0
	for _, r := range results {
		if len(selected) == l.topK {
			break
		}
		tokens := r.Chunk.TokenCount
		if tokens == 0 {
			tokens = l.est.Count(r.Chunk.Text)
		}
		if len(selected) > 0 && used+tokens > l.tokenBudget {
			break
		}
		selected = append(selected, r)
		used += tokens
	}
	return selected
}

func historyMessages(history []Message) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		switch strings.ToLower(m.Role) {
		case "user":
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case "model", "assistant":
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		}
	}
	return msgs
}
