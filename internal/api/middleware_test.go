package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/investron/investron/internal/indexer"
	"github.com/investron/investron/internal/testutil"
)

func newTestServer(index IndexService) *Server {
	return NewServer(ServerConfig{
		Addr:        ":0",
		CORSOrigins: []string{"https://app.example.com"},
		RateLimit:   100,
		RateBurst:   100,
	}, index, &fakeResearcher{}, nil, testutil.DiscardLogger())
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	handler := newTestServer(&fakeIndexService{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/filings/AAPL/status", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/filings/AAPL/status", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied", rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestServer(&fakeIndexService{}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSUnknownOriginGetsNoHeaders(t *testing.T) {
	handler := newTestServer(&fakeIndexService{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/filings/AAPL/status", nil)
	req.RemoteAddr = "10.0.0.3:1234"
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitExceeded(t *testing.T) {
	handler := NewServer(ServerConfig{
		RateLimit: 1,
		RateBurst: 1,
	}, &fakeIndexService{}, &fakeResearcher{}, nil, testutil.DiscardLogger()).Handler()

	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/filings/AAPL/status", nil)
		req.RemoteAddr = "192.168.1.5:40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, get())

	code := get()
	if code == http.StatusOK {
		// Burst of one may refill between the two calls on a slow runner;
		// drain until rejected.
		for i := 0; i < 5 && code == http.StatusOK; i++ {
			code = get()
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestRateLimitPerIP(t *testing.T) {
	rl := newRateLimiter(1, 1)

	require.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "a second client gets its own bucket")
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(testutil.DiscardLogger())(panicky)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(&fakeIndexService{report: indexer.Report{
		State: indexer.StateReady,
	}}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
