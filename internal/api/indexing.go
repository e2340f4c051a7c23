package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/investron/investron/internal/indexer"
)

// tickerPattern matches exchange ticker symbols, including class
// suffixes like BRK.B.
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,8}(\.[A-Z])?$`)

// IndexService is the subset of the indexer the HTTP layer needs.
type IndexService interface {
	Start(ctx context.Context, ticker string) error
	Status(ctx context.Context, ticker string) (indexer.Report, error)
	Delete(ctx context.Context, ticker string) error
}

// IndexHandler handles filing index endpoints.
//
// Endpoints:
//   - POST   /api/v1/filings/{ticker}/index  - trigger indexing
//   - GET    /api/v1/filings/{ticker}/status - poll index status
//   - DELETE /api/v1/filings/{ticker}/index  - remove the index
type IndexHandler struct {
	service IndexService
	logger  *slog.Logger
}

// NewIndexHandler creates an IndexHandler.
func NewIndexHandler(service IndexService, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{service: service, logger: logger}
}

// RegisterRoutes registers index routes on the mux.
func (h *IndexHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/filings/{ticker}/index", h.trigger)
	mux.HandleFunc("GET /api/v1/filings/{ticker}/status", h.status)
	mux.HandleFunc("DELETE /api/v1/filings/{ticker}/index", h.remove)
}

// StatusResponse is the JSON body for status responses. The per-type
// filing breakdown appears only once the index is ready; the progress
// string only while a run is active.
type StatusResponse struct {
	Ticker         string         `json:"ticker"`
	State          string         `json:"state"`
	Error          string         `json:"error,omitempty"`
	Progress       string         `json:"progress,omitempty"`
	FilingsIndexed int            `json:"filings_indexed"`
	ChunksTotal    int            `json:"chunks_total"`
	Filings        map[string]int `json:"filings,omitempty"`
	LastFilingDate *time.Time     `json:"last_filing_date,omitempty"`
	LastIndexedAt  *time.Time     `json:"last_indexed_at,omitempty"`
}

// trigger starts a background indexing run and acknowledges with 202.
// Triggering a ticker that is already indexing is acknowledged the same
// way without starting a second run.
func (h *IndexHandler) trigger(w http.ResponseWriter, r *http.Request) {
	ticker, ok := pathTicker(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Start(r.Context(), ticker); err != nil {
		h.logger.Error("triggering indexing failed", "ticker", ticker, "error", err)
		writeError(w, http.StatusInternalServerError, "index_trigger_failed",
			"could not start indexing", h.logger)
		return
	}

	writeJSON(w, http.StatusAccepted, StatusResponse{
		Ticker: ticker,
		State:  string(indexer.StateIndexing),
	}, h.logger)
}

func (h *IndexHandler) status(w http.ResponseWriter, r *http.Request) {
	ticker, ok := pathTicker(w, r, h.logger)
	if !ok {
		return
	}

	report, err := h.service.Status(r.Context(), ticker)
	if err != nil {
		h.logger.Error("reading index status failed", "ticker", ticker, "error", err)
		writeError(w, http.StatusInternalServerError, "status_failed",
			"could not read index status", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse(report), h.logger)
}

func (h *IndexHandler) remove(w http.ResponseWriter, r *http.Request) {
	ticker, ok := pathTicker(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), ticker); err != nil {
		if errors.Is(err, indexer.ErrStatusNotFound) {
			writeError(w, http.StatusNotFound, "not_indexed",
				"no index exists for "+ticker, h.logger)
			return
		}
		h.logger.Error("deleting index failed", "ticker", ticker, "error", err)
		writeError(w, http.StatusConflict, "delete_failed", err.Error(), h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func statusResponse(report indexer.Report) StatusResponse {
	resp := StatusResponse{
		Ticker:         report.Ticker,
		State:          string(report.State),
		Error:          report.Error,
		Progress:       report.Progress,
		FilingsIndexed: report.FilingsIndexed,
		ChunksTotal:    report.ChunksTotal,
	}
	if report.State == indexer.StateReady && len(report.Filings) > 0 {
		resp.Filings = make(map[string]int, len(report.Filings))
		for ft, n := range report.Filings {
			resp.Filings[string(ft)] = n
		}
	}
	if !report.LastFilingDate.IsZero() {
		t := report.LastFilingDate
		resp.LastFilingDate = &t
	}
	if !report.LastIndexedAt.IsZero() {
		t := report.LastIndexedAt
		resp.LastIndexedAt = &t
	}
	return resp
}

// pathTicker extracts and validates the {ticker} path value. On failure
// it writes a 400 and returns false.
func pathTicker(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	return validTicker(w, r.PathValue("ticker"), logger)
}

func validTicker(w http.ResponseWriter, raw string, logger *slog.Logger) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if !tickerPattern.MatchString(ticker) {
		writeError(w, http.StatusBadRequest, "invalid_ticker",
			"ticker must be 1-8 letters, optionally with a class suffix", logger)
		return "", false
	}
	return ticker, true
}
