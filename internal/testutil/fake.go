package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// FakeEmbedder is a deterministic ai.Embedder. Identical text always
// yields the identical vector, so similarity assertions are stable
// across runs. Explicit vectors can be pinned per text for precise
// cosine ordering.
type FakeEmbedder struct {
	Dim int
	Err error // returned from every Embed call when set

	mu      sync.Mutex
	pinned  map[string][]float32
	batches []int // sizes of the batches received, in order
}

// NewFakeEmbedder creates a FakeEmbedder producing vectors of the given
// dimension.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{Dim: dim, pinned: make(map[string][]float32)}
}

// Pin registers an explicit vector for a text.
func (e *FakeEmbedder) Pin(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[text] = vec
}

// Batches returns the batch sizes seen so far.
func (e *FakeEmbedder) Batches() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.batches...)
}

// Name implements ai.Embedder.
func (e *FakeEmbedder) Name() string { return "fake/embedder" }

// Register implements ai.Embedder. The fake never joins a registry.
func (e *FakeEmbedder) Register(api.Registry) {}

// Embed implements ai.Embedder.
func (e *FakeEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	e.batches = append(e.batches, len(req.Input))
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{Embedding: e.vectorFor(documentText(doc))}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *FakeEmbedder) vectorFor(text string) []float32 {
	e.mu.Lock()
	v, ok := e.pinned[text]
	e.mu.Unlock()
	if ok {
		return v
	}
	return DeterministicVector(text, e.Dim)
}

// DeterministicVector derives a unit-free vector from text by expanding
// a SHA-256 digest. Equal text gives equal vectors.
func DeterministicVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := sha256.Sum256([]byte(text))
	digest := seed[:]
	for i := 0; i < dim; i++ {
		if i%8 == 0 && i > 0 {
			next := sha256.Sum256(digest)
			digest = next[:]
		}
		bits := binary.BigEndian.Uint32(digest[(i%8)*4 : (i%8)*4+4])
		vec[i] = float32(bits%2000)/1000 - 1 // [-1, 1)
	}
	return vec
}

func documentText(doc *ai.Document) string {
	var b strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// WordEstimator is a token.Estimator that treats each whitespace-
// separated word as one token. Encode and Decode round-trip exactly, so
// chunker tests can reason in words instead of BPE pieces.
type WordEstimator struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewWordEstimator creates a WordEstimator.
func NewWordEstimator() *WordEstimator {
	return &WordEstimator{ids: make(map[string]int)}
}

func (e *WordEstimator) Count(text string) int {
	return len(strings.Fields(text))
}

func (e *WordEstimator) Encode(text string) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i, w := range fields {
		id, ok := e.ids[w]
		if !ok {
			id = len(e.words)
			e.ids[w] = id
			e.words = append(e.words, w)
		}
		out[i] = id
	}
	return out
}

func (e *WordEstimator) Decode(ids []int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(e.words) {
			words = append(words, e.words[id])
		}
	}
	return strings.Join(words, " ")
}

// ScriptedGenerator returns canned model completions in order. Once the
// script is exhausted it repeats the last response.
type ScriptedGenerator struct {
	Responses []string
	Err       error

	mu    sync.Mutex
	calls int
}

// Generate implements the topic generator seam.
func (g *ScriptedGenerator) Generate(_ context.Context, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.Err != nil {
		return "", g.Err
	}
	if len(g.Responses) == 0 {
		return "", nil
	}
	i := g.calls - 1
	if i >= len(g.Responses) {
		i = len(g.Responses) - 1
	}
	return g.Responses[i], nil
}

// Calls returns how many times Generate ran.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
