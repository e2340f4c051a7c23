// Package edgar fetches SEC filings from the EDGAR archives.
//
// EDGAR has no API key, but it enforces two access rules: every request
// must carry a descriptive User-Agent identifying the caller, and
// traffic must stay under ten requests per second. The client applies
// both on every request through a shared limiter.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/investron/investron/internal/filing"
)

const (
	submissionsURL = "https://data.sec.gov/submissions/CIK%010d.json"
	tickersURL     = "https://www.sec.gov/files/company_tickers.json"
	archiveURL     = "https://www.sec.gov/Archives/edgar/data/%d/%s/%s"

	// maxDocumentBytes bounds one filing download. The largest annual
	// reports run tens of megabytes of markup.
	maxDocumentBytes = 64 << 20
)

// Config controls the client.
type Config struct {
	// UserAgent identifies the caller to EDGAR, e.g.
	// "investron admin@example.com". Required by SEC access policy.
	UserAgent string

	// RequestsPerSecond caps outbound request rate. Zero means 10, the
	// SEC's published ceiling.
	RequestsPerSecond float64

	// HTTPClient overrides the transport, mainly for tests. Nil means a
	// client with a 30 second timeout.
	HTTPClient *http.Client
}

// Client lists and fetches filings for a ticker. It implements the
// indexing pipeline's document source.
type Client struct {
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu   sync.Mutex
	ciks map[string]int // ticker -> CIK, loaded once
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		http:      httpClient,
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		logger:    logger,
	}
}

// List returns up to limit most recent filings of one type for a ticker,
// newest first, drawn from the company's recent submissions feed.
func (c *Client) List(ctx context.Context, ticker string, ft filing.Type, limit int) ([]filing.Ref, error) {
	cik, err := c.resolveCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var feed submissionsFeed
	if err := c.getJSON(ctx, fmt.Sprintf(submissionsURL, cik), &feed); err != nil {
		return nil, fmt.Errorf("fetching submissions for %s: %w", ticker, err)
	}

	recent := feed.Filings.Recent
	// A truncated feed can leave the parallel arrays at unequal lengths;
	// only complete rows are usable.
	n := min(len(recent.Form), len(recent.FilingDate))
	n = min(n, len(recent.AccessionNumber))
	n = min(n, len(recent.PrimaryDocument))

	refs := make([]filing.Ref, 0, limit)
	for i := 0; i < n; i++ {
		if recent.Form[i] != string(ft) {
			continue
		}
		date, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			continue
		}
		accession := strings.ReplaceAll(recent.AccessionNumber[i], "-", "")
		refs = append(refs, filing.Ref{
			Ticker:          strings.ToUpper(ticker),
			Type:            ft,
			Date:            date,
			AccessionNumber: recent.AccessionNumber[i],
			URL:             fmt.Sprintf(archiveURL, cik, accession, recent.PrimaryDocument[i]),
		})
		if len(refs) == limit {
			break
		}
	}

	c.logger.Debug("listed filings",
		"ticker", ticker, "type", ft, "found", len(refs))
	return refs, nil
}

// Fetch downloads a filing's primary document. EDGAR serves some
// filings only as PDF; those cannot be section-parsed and are rejected.
func (c *Client) Fetch(ctx context.Context, ref filing.Ref) (filing.Document, error) {
	body, contentType, err := c.get(ctx, ref.URL)
	if err != nil {
		return filing.Document{}, fmt.Errorf("fetching %s: %w", ref.URL, err)
	}

	if strings.Contains(contentType, "application/pdf") ||
		strings.HasSuffix(strings.ToLower(ref.URL), ".pdf") {
		return filing.Document{}, fmt.Errorf("filing %s is a PDF, only HTML filings are supported", ref.AccessionNumber)
	}

	return filing.Document{
		Ticker:    ref.Ticker,
		Type:      ref.Type,
		Date:      ref.Date,
		SourceURL: ref.URL,
		HTML:      string(body),
	}, nil
}

// resolveCIK maps a ticker symbol to its SEC Central Index Key. The
// full ticker table is fetched once per process and cached.
func (c *Client) resolveCIK(ctx context.Context, ticker string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ciks == nil {
		var table map[string]struct {
			CIK    int    `json:"cik_str"`
			Ticker string `json:"ticker"`
		}
		if err := c.getJSON(ctx, tickersURL, &table); err != nil {
			return 0, fmt.Errorf("fetching ticker table: %w", err)
		}
		c.ciks = make(map[string]int, len(table))
		for _, entry := range table {
			c.ciks[strings.ToUpper(entry.Ticker)] = entry.CIK
		}
	}

	cik, ok := c.ciks[strings.ToUpper(ticker)]
	if !ok {
		return 0, fmt.Errorf("unknown ticker %q", strings.ToUpper(ticker))
	}
	return cik, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	body, _, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// submissionsFeed is the subset of EDGAR's submissions JSON the client
// reads. Arrays are parallel: index i across them describes one filing.
type submissionsFeed struct {
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}
