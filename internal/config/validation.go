package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Sentinel errors for configuration validation, checkable with
// errors.Is.
var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")

	// ErrInvalidModelName indicates the chat model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedder indicates the embedder model or dimension is
	// invalid.
	ErrInvalidEmbedder = errors.New("invalid embedder configuration")

	// ErrInvalidDatabaseURL indicates the database URL is malformed.
	ErrInvalidDatabaseURL = errors.New("invalid database URL")

	// ErrInvalidChunking indicates chunk sizing values are out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidLimits indicates a per-type filing limit is out of range.
	ErrInvalidLimits = errors.New("invalid indexing limits")

	// ErrInvalidResearch indicates research loop values are out of range.
	ErrInvalidResearch = errors.New("invalid research configuration")

	// ErrMissingUserAgent indicates no EDGAR user agent is configured.
	// The SEC rejects anonymous crawlers.
	ErrMissingUserAgent = errors.New("missing EDGAR user agent")
)

// Validate checks every field and returns the first violation.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return ErrInvalidModelName
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY in the environment", ErrMissingAPIKey)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedder)
	}
	if c.EmbedderDim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidEmbedder, c.EmbedderDim)
	}
	if c.EmbedBatch <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidEmbedder, c.EmbedBatch)
	}

	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDatabaseURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("%w: scheme %q, expected postgres", ErrInvalidDatabaseURL, u.Scheme)
	}

	if c.ChunkMaxTokens <= 0 {
		return fmt.Errorf("%w: chunk_max_tokens must be positive, got %d", ErrInvalidChunking, c.ChunkMaxTokens)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_max_tokens), got %d", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.MinSections < 1 {
		return fmt.Errorf("%w: min_sections must be at least 1, got %d", ErrInvalidChunking, c.MinSections)
	}

	for name, n := range map[string]int{
		"limit_10k": c.Limit10K,
		"limit_10q": c.Limit10Q,
		"limit_8k":  c.Limit8K,
	} {
		if n < 1 || n > 50 {
			return fmt.Errorf("%w: %s must be in [1, 50], got %d", ErrInvalidLimits, name, n)
		}
	}

	if c.MaxRounds < 1 || c.MaxRounds > 10 {
		return fmt.Errorf("%w: max_rounds must be in [1, 10], got %d", ErrInvalidResearch, c.MaxRounds)
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be in [1, 50], got %d", ErrInvalidResearch, c.TopK)
	}
	if c.TokenBudget < 100 {
		return fmt.Errorf("%w: token_budget must be at least 100, got %d", ErrInvalidResearch, c.TokenBudget)
	}

	if strings.TrimSpace(c.EdgarUserAgent) == "" {
		return fmt.Errorf("%w: set edgar_user_agent to identify yourself, e.g. \"investron you@example.com\"", ErrMissingUserAgent)
	}

	return nil
}
