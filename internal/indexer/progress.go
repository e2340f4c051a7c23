package indexer

import "sync"

// progressBoard holds the in-memory, human-readable progress message for
// each ticker currently being indexed. Messages are advisory: they live
// only as long as the process and the run, and are merged into status
// responses while a run is active.
type progressBoard struct {
	mu       sync.Mutex
	messages map[string]string
}

func newProgressBoard() *progressBoard {
	return &progressBoard{messages: make(map[string]string)}
}

func (b *progressBoard) set(ticker, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[ticker] = message
}

func (b *progressBoard) get(ticker string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.messages[ticker]
	return msg, ok
}

func (b *progressBoard) clear(ticker string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.messages, ticker)
}
