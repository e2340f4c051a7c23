// Package token provides token counting against the cl100k_base
// reference encoding, the same encoding used by the embedding model's
// tokenizer, so chunk size limits and retrieval budgets are enforced in
// the units the model actually sees.
package token

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// EncodingName is the reference encoding for all token accounting.
const EncodingName = "cl100k_base"

// Estimator counts and slices text in token units.
//
// Encode/Decode exist alongside Count because the chunker splits on token
// boundaries: it encodes a section once, slices the id stream, and
// decodes each slice back to text.
type Estimator interface {
	Count(text string) int
	Encode(text string) []int
	Decode(tokens []int) string
}

var setLoaderOnce sync.Once

// NewTiktoken returns an Estimator backed by the embedded cl100k_base
// BPE dictionary. The offline loader avoids a network fetch of the
// dictionary at first use.
func NewTiktoken() (Estimator, error) {
	setLoaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(EncodingName)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", EncodingName, err)
	}
	return &tiktokenEstimator{enc: enc}, nil
}

type tiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

func (e *tiktokenEstimator) Count(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

func (e *tiktokenEstimator) Encode(text string) []int {
	return e.enc.Encode(text, nil, nil)
}

func (e *tiktokenEstimator) Decode(tokens []int) string {
	return e.enc.Decode(tokens)
}

// Approx is a dictionary-free fallback Estimator used when the BPE
// dictionary cannot be loaded. Every rune is one token (ids are code
// points), so Encode/Decode round-trip exactly. It over-counts English
// text by roughly 4x, erring toward smaller chunks and tighter budgets.
type Approx struct{}

func (Approx) Count(text string) int {
	return utf8.RuneCountInString(text)
}

func (Approx) Encode(text string) []int {
	runes := []rune(text)
	ids := make([]int, len(runes))
	for i, r := range runes {
		ids[i] = int(r)
	}
	return ids
}

func (Approx) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, id := range tokens {
		runes[i] = rune(id)
	}
	return string(runes)
}
