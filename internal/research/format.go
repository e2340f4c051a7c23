package research

import (
	"fmt"
	"strings"

	"github.com/investron/investron/internal/vectorstore"
)

// noResultsMessage is returned to the model when a search matches
// nothing, so it can tell the user instead of hallucinating content.
const noResultsMessage = "No relevant excerpts found in the indexed filings for this search."

// formatResults renders search hits as a plain-text context block for
// the model. Each excerpt is prefixed with its provenance so the model
// can cite filing type, date and section.
func formatResults(results []vectorstore.Result) string {
	if len(results) == 0 {
		return noResultsMessage
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- From %s filed %s | %s ---\n",
			r.Chunk.FilingType,
			r.Chunk.FilingDate.Format("2006-01-02"),
			r.Chunk.SectionName)
		if r.Chunk.IsTable {
			b.WriteString("[Table]\n")
		}
		b.WriteString(r.Chunk.Text)
	}
	return b.String()
}
