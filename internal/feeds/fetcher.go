package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	DefaultUserAgent    = "newsie/1.0"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 10 << 20
)

// Options configures a Fetcher. Zero values take the defaults above.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

type Fetcher struct {
	parser    *gofeed.Parser
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewFetcher creates a new feed fetcher
func NewFetcher(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	parser := gofeed.NewParser()
	parser.UserAgent = opts.UserAgent
	return &Fetcher{
		parser:    parser,
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
	}
}

// Source identifies what to fetch. ETag and LastModified come from the
// previous successful fetch and may be empty.
type Source struct {
	URL          string
	ETag         string
	LastModified string
}

// Result holds the outcome of a conditional feed fetch.
type Result struct {
	Document     *Document // nil when NotModified is true
	ETag         string    // ETag from response (empty if absent)
	LastModified string    // Last-Modified from response (empty if absent)
	NotModified  bool      // true when server returned 304
}

// Fetch fetches and parses a single feed using conditional HTTP requests.
// If the source has stored ETag or Last-Modified values, they are sent as
// If-None-Match / If-Modified-Since headers. A 304 response skips parsing
// entirely and returns NotModified=true.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", src.URL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", src.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("feed %s returned status %d", src.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", src.URL, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("feed %s exceeds %d bytes", src.URL, f.maxBody)
	}

	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", src.URL, err)
	}

	return &Result{
		Document:     documentFromParsed(parsed),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
