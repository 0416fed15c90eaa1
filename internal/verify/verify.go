// Package verify checks that job apply links still resolve to a live
// posting. Plain HTTP first; JavaScript-rendered pages fall back to a
// headless browser.
package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resume-pipeline/internal/ingestion"
)

// DefaultTimeout bounds one link check end to end
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests
const DefaultUserAgent = "Mozilla/5.0 (compatible; PipelineAgent/1.0)"

// MinContentLength is the minimum extracted text length to consider an
// HTTP fetch conclusive; shorter pages are likely JavaScript-rendered
// and get the browser fallback.
const MinContentLength = 500

// LinkStatus classifies a checked apply link
type LinkStatus string

const (
	// StatusLive means the posting page resolved with real content
	StatusLive LinkStatus = "live"
	// StatusExpired means the page resolved but reports the posting closed
	StatusExpired LinkStatus = "expired"
	// StatusDead means the link did not resolve
	StatusDead LinkStatus = "dead"
)

// expiredMarkers are phrases job boards show for closed postings
var expiredMarkers = []string{
	"no longer accepting applications",
	"this position has been filled",
	"this job is no longer available",
	"job posting has expired",
	"position is no longer open",
	"job not found",
}

// Result is the outcome of checking one link
type Result struct {
	URL        string     `json:"url"`
	Status     LinkStatus `json:"status"`
	StatusCode int        `json:"status_code,omitempty"`
	FinalURL   string     `json:"final_url,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

// Checker verifies apply links
type Checker struct {
	Timeout       time.Duration
	MaxConcurrent int
	Verbose       bool

	// render is swapped out in tests; defaults to the chromedp renderer
	render func(ctx context.Context, url string, timeout time.Duration, verbose bool) (string, error)
	client *http.Client
}

// NewChecker returns a checker with production defaults
func NewChecker(timeout time.Duration, maxConcurrent int, verbose bool) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Checker{
		Timeout:       timeout,
		MaxConcurrent: maxConcurrent,
		Verbose:       verbose,
		render:        renderWithBrowser,
		client:        &http.Client{Timeout: timeout},
	}
}

// Check verifies a single apply link
func (c *Checker) Check(ctx context.Context, rawURL string) Result {
	result := Result{URL: rawURL, Status: StatusDead}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		result.Detail = "invalid URL"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()

	if resp.StatusCode >= 400 {
		result.Detail = fmt.Sprintf("HTTP status %d", resp.StatusCode)
		return result
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Detail = "failed to read response body"
		return result
	}

	text, err := ingestion.ExtractTextFromHTML(string(body))
	if err != nil {
		text = string(body)
	}

	// Short pages are usually an SPA shell; render before judging.
	if len(strings.TrimSpace(text)) < MinContentLength && c.render != nil {
		html, renderErr := c.render(ctx, rawURL, c.Timeout, c.Verbose)
		if renderErr != nil {
			result.Status = StatusLive
			result.Detail = "content inconclusive, browser rendering failed"
			return result
		}
		if rendered, extractErr := ingestion.ExtractTextFromHTML(html); extractErr == nil && rendered != "" {
			text = rendered
		}
	}

	if marker := expiredMarker(text); marker != "" {
		result.Status = StatusExpired
		result.Detail = marker
		return result
	}

	result.Status = StatusLive
	return result
}

// CheckAll verifies links over a bounded worker pool, preserving input order
func (c *Checker) CheckAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.MaxConcurrent)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			r := c.Check(gctx, u)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func expiredMarker(text string) string {
	lower := strings.ToLower(text)
	for _, marker := range expiredMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}
