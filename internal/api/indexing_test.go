package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/investron/investron/internal/filing"
	"github.com/investron/investron/internal/indexer"
	"github.com/investron/investron/internal/research"
	"github.com/investron/investron/internal/testutil"
)

type fakeIndexService struct {
	startErr  error
	started   []string
	report    indexer.Report
	statusErr error
	deleteErr error
	deleted   []string
}

func (f *fakeIndexService) Start(_ context.Context, ticker string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, ticker)
	return nil
}

func (f *fakeIndexService) Status(_ context.Context, ticker string) (indexer.Report, error) {
	if f.statusErr != nil {
		return indexer.Report{}, f.statusErr
	}
	rep := f.report
	if rep.Ticker == "" {
		rep.Ticker = ticker
	}
	return rep, nil
}

func (f *fakeIndexService) Delete(_ context.Context, ticker string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ticker)
	return nil
}

type fakeResearcher struct {
	events []research.Event
	ticker string
}

func (f *fakeResearcher) Stream(_ context.Context, ticker, _ string, _ []research.Message, emit func(research.Event)) {
	f.ticker = ticker
	for _, ev := range f.events {
		emit(ev)
	}
}

func indexMux(service IndexService) *http.ServeMux {
	mux := http.NewServeMux()
	NewIndexHandler(service, testutil.DiscardLogger()).RegisterRoutes(mux)
	return mux
}

func TestTriggerIndexing(t *testing.T) {
	service := &fakeIndexService{}
	mux := indexMux(service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/filings/aapl/index", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, "indexing", resp.State)
	assert.Equal(t, []string{"AAPL"}, service.started)
}

func TestTriggerIndexingInvalidTicker(t *testing.T) {
	service := &fakeIndexService{}
	mux := indexMux(service)

	for _, ticker := range []string{"123", "TOOLONGNAME", "AA-PL"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/filings/"+ticker+"/index", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "ticker %q", ticker)
	}
	assert.Empty(t, service.started)
}

func TestTriggerIndexingClassSuffix(t *testing.T) {
	service := &fakeIndexService{}
	mux := indexMux(service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/filings/BRK.B/index", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"BRK.B"}, service.started)
}

func TestTriggerIndexingServiceFailure(t *testing.T) {
	mux := indexMux(&fakeIndexService{startErr: errors.New("db down")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/filings/AAPL/index", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIndexStatus(t *testing.T) {
	indexedAt := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	filedAt := time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC)
	service := &fakeIndexService{report: indexer.Report{
		Ticker:         "AAPL",
		State:          indexer.StateReady,
		FilingsIndexed: 7,
		ChunksTotal:    142,
		LastFilingDate: filedAt,
		LastIndexedAt:  indexedAt,
		Filings: map[filing.Type]int{
			filing.Type10K: 2,
			filing.Type8K:  5,
		},
	}}
	mux := indexMux(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/filings/AAPL/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, "ready", resp.State)
	assert.Equal(t, 7, resp.FilingsIndexed)
	assert.Equal(t, 142, resp.ChunksTotal)
	assert.Equal(t, map[string]int{"10-K": 2, "8-K": 5}, resp.Filings)
	require.NotNil(t, resp.LastFilingDate)
	assert.True(t, resp.LastFilingDate.Equal(filedAt))
	require.NotNil(t, resp.LastIndexedAt)
	assert.True(t, resp.LastIndexedAt.Equal(indexedAt))
}

func TestIndexStatusPendingOmitsEmptyFields(t *testing.T) {
	service := &fakeIndexService{report: indexer.Report{State: indexer.StatePending}}
	mux := indexMux(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/filings/MSFT/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.Equal(t, "pending", raw["state"])
	assert.NotContains(t, raw, "filings")
	assert.NotContains(t, raw, "last_filing_date")
	assert.NotContains(t, raw, "last_indexed_at")
	assert.NotContains(t, raw, "error")
}

func TestDeleteIndex(t *testing.T) {
	service := &fakeIndexService{}
	mux := indexMux(service)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/filings/AAPL/index", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"AAPL"}, service.deleted)
}

func TestDeleteIndexNotFound(t *testing.T) {
	mux := indexMux(&fakeIndexService{deleteErr: indexer.ErrStatusNotFound})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/filings/AAPL/index", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteIndexWhileRunning(t *testing.T) {
	mux := indexMux(&fakeIndexService{deleteErr: errors.New("indexing in progress")})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/filings/AAPL/index", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
