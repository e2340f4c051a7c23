// Package topics extracts free-form topic phrases from filing sections
// with a language model.
//
// Topics are enhancement metadata: the tagger is called at most once per
// section per indexing run, all chunks of the section inherit its
// result, and any failure degrades to an empty topic list rather than
// aborting the run.
package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/investron/investron/internal/filing"
	"github.com/investron/investron/internal/token"
)

const (
	// maxInputTokens truncates section text fed to the extraction prompt
	// to keep the per-section call cheap.
	maxInputTokens = 3000

	// maxTopics caps the number of phrases kept per section.
	maxTopics = 8
)

const promptTemplate = `Extract 3-8 key topic phrases from this SEC filing section.

Return ONLY a JSON array of short phrases (2-5 words each).
Focus on specific business risks, strategies, financial themes,
or notable disclosures - not generic labels.

Company: %s
Filing type: %s
Section: %s

Section text (may be truncated):
%s`

// Generator produces a model completion for a prompt. It is the
// consumer-side seam between the tagger and the language-model service,
// so tests can substitute a scripted implementation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenkitGenerator calls the configured chat model through Genkit.
type GenkitGenerator struct {
	G     *genkit.Genkit
	Model string // e.g. "googleai/gemini-2.5-flash"
}

func (g *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, g.G,
		ai.WithModelName(g.Model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("topic extraction call: %w", err)
	}
	return resp.Text(), nil
}

// Tagger extracts topic phrases per section.
type Tagger struct {
	gen    Generator
	est    token.Estimator
	logger *slog.Logger
}

// New creates a Tagger.
func New(gen Generator, est token.Estimator, logger *slog.Logger) *Tagger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tagger{gen: gen, est: est, logger: logger}
}

// Topics returns topic phrases for one section. On any failure it logs
// and returns an empty list; topic extraction never fails an indexing
// run.
func (t *Tagger) Topics(ctx context.Context, ticker string, ft filing.Type, section filing.Section) []string {
	text := section.Text()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if t.est.Count(text) > maxInputTokens {
		// Rough character bound, ~4 chars per token.
		text = truncateBytes(text, maxInputTokens*4)
	}

	prompt := fmt.Sprintf(promptTemplate,
		strings.ToUpper(ticker), ft, section.Name, text)

	content, err := t.gen.Generate(ctx, prompt)
	if err != nil {
		t.logger.Warn("topic extraction failed",
			"ticker", ticker,
			"section", section.Name,
			"error", err)
		return nil
	}

	phrases, err := parseTopics(content)
	if err != nil {
		t.logger.Warn("topic extraction returned unparseable content",
			"ticker", ticker,
			"section", section.Name,
			"error", err)
		return nil
	}

	t.logger.Debug("extracted topics",
		"section", section.Name,
		"count", len(phrases))
	return phrases
}

// truncateBytes cuts text at limit bytes, backing up so the cut never
// lands inside a multi-byte rune.
func truncateBytes(text string, limit int) string {
	if limit >= len(text) {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

// parseTopics parses the model output as a JSON string array, tolerating
// markdown code fences around it.
func parseTopics(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if i := strings.Index(content, "```"); i >= 0 {
			content = content[:i]
		}
		content = strings.TrimSpace(content)
	}

	var raw []any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parsing topic array: %w", err)
	}

	phrases := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		phrases = append(phrases, s)
		if len(phrases) == maxTopics {
			break
		}
	}
	return phrases, nil
}
