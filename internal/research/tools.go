package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/investron/investron/internal/filing"
	"github.com/investron/investron/internal/vectorstore"
)

// searchToolName is the single tool exposed to the model.
const searchToolName = "search_filings"

// SearchArgs are the model-supplied arguments for one filing search.
type SearchArgs struct {
	// Query is the semantic search query. Required.
	Query string `json:"query"`

	// FilingTypes optionally restricts results, e.g. ["10-K"].
	FilingTypes []string `json:"filing_types,omitempty"`

	// Categories optionally restricts results to section categories,
	// e.g. ["risk_factors"].
	Categories []string `json:"categories,omitempty"`

	// MinDate optionally restricts results to filings on or after this
	// date, formatted YYYY-MM-DD.
	MinDate string `json:"min_date,omitempty"`
}

// options translates the arguments into store search options. Unknown
// filing types and malformed dates are dropped rather than failing the
// search: the model's output is advisory, never authoritative.
func (a SearchArgs) options(limit int) []vectorstore.SearchOption {
	opts := []vectorstore.SearchOption{vectorstore.WithLimit(limit)}

	var types []filing.Type
	for _, s := range a.FilingTypes {
		if ft, ok := filing.ParseType(s); ok {
			types = append(types, ft)
		}
	}
	if len(types) > 0 {
		opts = append(opts, vectorstore.WithFilingTypes(types...))
	}

	var categories []string
	for _, c := range a.Categories {
		if filing.ValidCategory(c) {
			categories = append(categories, c)
		}
	}
	if len(categories) > 0 {
		opts = append(opts, vectorstore.WithCategories(categories...))
	}

	if a.MinDate != "" {
		if min, err := time.Parse("2006-01-02", a.MinDate); err == nil {
			opts = append(opts, vectorstore.WithMinDate(min))
		}
	}
	return opts
}

// decodeSearchArgs converts a raw tool request input into SearchArgs.
func decodeSearchArgs(input any) (SearchArgs, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return SearchArgs{}, fmt.Errorf("encoding tool input: %w", err)
	}
	var args SearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return SearchArgs{}, fmt.Errorf("decoding tool input: %w", err)
	}
	if args.Query == "" {
		return SearchArgs{}, errors.New("search_filings requires a query")
	}
	return args, nil
}

// defineSearchTool registers the search tool so the model sees its name,
// description and argument schema. The handler never runs: the loop
// requests raw tool calls and executes searches itself to control the
// round and token budgets.
func defineSearchTool(g *genkit.Genkit) ai.Tool {
	return genkit.DefineTool(g, searchToolName,
		"Search the indexed SEC filings of the current company. "+
			"Returns relevant excerpts from 10-K, 10-Q and 8-K filings. "+
			"Optionally filter by filing type, section category, or minimum filing date (YYYY-MM-DD).",
		func(ctx *ai.ToolContext, args SearchArgs) (string, error) {
			return "", errors.New("search_filings must be executed by the research loop")
		})
}
