package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/investron/investron/internal/indexer"
	"github.com/investron/investron/internal/research"
)

// Researcher runs the research loop and streams events.
type Researcher interface {
	Stream(ctx context.Context, ticker, question string, history []research.Message, emit func(research.Event))
}

// ChatHandler serves the research chat endpoint over Server-Sent
// Events.
//
// Request body: {"ticker": "...", "question": "...", "history": [...]}
// Event types: status, token, done, error.
type ChatHandler struct {
	researcher Researcher
	index      IndexService
	logger     *slog.Logger
}

// NewChatHandler creates a ChatHandler. The index service gates chat on
// index readiness.
func NewChatHandler(researcher Researcher, index IndexService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{researcher: researcher, index: index, logger: logger}
}

// RegisterRoutes registers the chat route on the mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.handleChat)
}

// ChatRequest is the JSON request body.
type ChatRequest struct {
	Ticker   string             `json:"ticker"`
	Question string             `json:"question"`
	History  []research.Message `json:"history,omitempty"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"request body must be JSON", h.logger)
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "missing_question",
			"question is required", h.logger)
		return
	}
	ticker, ok := validTicker(w, req.Ticker, h.logger)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	emit := func(ev research.Event) {
		// A disconnected client makes further writes no-ops; the loop
		// still runs to completion on its own context check.
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("encoding stream event failed", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	report, err := h.index.Status(r.Context(), ticker)
	if err != nil {
		h.logger.Error("readiness check failed", "ticker", ticker, "error", err)
		emit(research.Event{Type: research.EventError,
			Content: "could not check index status"})
		return
	}
	if report.State != indexer.StateReady {
		emit(research.Event{Type: research.EventError,
			Content: fmt.Sprintf("filings for %s are not indexed yet (state: %s); trigger indexing first",
				ticker, report.State)})
		return
	}

	h.logger.Info("chat stream started", "ticker", ticker)
	h.researcher.Stream(r.Context(), ticker, req.Question, req.History, emit)
}
