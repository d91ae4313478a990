package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <description>A feed for tests</description>
    <link>https://example.com/</link>
    <image>
      <url>https://example.com/logo.png</url>
      <title>Logo</title>
      <link>https://example.com/</link>
    </image>
    <item>
      <guid>item-1</guid>
      <title>Test Article</title>
      <link>https://example.com/1</link>
      <description>Hello world</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    </item>
    <item>
      <title>No Guid</title>
      <link>https://example.com/2</link>
    </item>
  </channel>
</rss>`

func serveRSS(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchParsesDocument(t *testing.T) {
	srv := serveRSS(t, testRSS)

	result, err := NewFetcher(Options{}).Fetch(context.Background(), Source{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	doc := result.Document
	if doc == nil {
		t.Fatal("expected parsed document")
	}
	if doc.Title != "Test Feed" || doc.Description != "A feed for tests" {
		t.Errorf("unexpected feed metadata: %+v", doc)
	}
	if doc.Image.URL != "https://example.com/logo.png" {
		t.Errorf("image url=%q", doc.Image.URL)
	}
	if len(doc.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(doc.Items))
	}

	first := doc.Items[0]
	if first.GUID != "item-1" || first.Link != "https://example.com/1" {
		t.Errorf("unexpected first item: %+v", first)
	}
	if first.PublishedParsed == nil {
		t.Fatal("expected parsed publish date")
	}
	if want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC); !first.PublishedParsed.Equal(want) {
		t.Errorf("published=%v, want %v", first.PublishedParsed, want)
	}

	second := doc.Items[1]
	if second.GUID != "" {
		t.Errorf("expected empty guid, got %q", second.GUID)
	}
	if second.PublishedParsed != nil {
		t.Errorf("expected nil publish date, got %v", second.PublishedParsed)
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	if _, err := NewFetcher(Options{UserAgent: "newsie-test"}).Fetch(context.Background(), Source{URL: srv.URL}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "newsie-test" {
		t.Errorf("user agent=%q, want newsie-test", got)
	}
}

func TestFetchConditional304(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"abc123"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Error("expected If-None-Match header")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result, err := NewFetcher(Options{}).Fetch(context.Background(), Source{URL: srv.URL, ETag: `"abc123"`})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !result.NotModified {
		t.Error("expected NotModified=true")
	}
	if result.Document != nil {
		t.Error("expected nil Document on 304")
	}
}

func TestFetchConditionalLastModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") == "Mon, 17 Feb 2026 00:00:00 GMT" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Error("expected If-Modified-Since header")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	src := Source{URL: srv.URL, LastModified: "Mon, 17 Feb 2026 00:00:00 GMT"}
	result, err := NewFetcher(Options{}).Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !result.NotModified {
		t.Error("expected NotModified=true")
	}
}

func TestFetchReturnsValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"new-etag"`)
		w.Header().Set("Last-Modified", "Mon, 17 Feb 2026 12:00:00 GMT")
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	result, err := NewFetcher(Options{}).Fetch(context.Background(), Source{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.NotModified {
		t.Error("expected NotModified=false for 200")
	}
	if result.ETag != `"new-etag"` {
		t.Errorf("etag=%q, want \"new-etag\"", result.ETag)
	}
	if result.LastModified != "Mon, 17 Feb 2026 12:00:00 GMT" {
		t.Errorf("last-modified=%q", result.LastModified)
	}
}

func TestFetchNoValidators(t *testing.T) {
	srv := serveRSS(t, testRSS)

	result, err := NewFetcher(Options{}).Fetch(context.Background(), Source{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.ETag != "" || result.LastModified != "" {
		t.Errorf("expected empty validators, got %q / %q", result.ETag, result.LastModified)
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewFetcher(Options{}).Fetch(context.Background(), Source{URL: srv.URL}); err == nil {
		t.Fatal("expected error for 500 status")
	}
}

func TestFetchMalformedBody(t *testing.T) {
	srv := serveRSS(t, "this is not a feed")

	if _, err := NewFetcher(Options{}).Fetch(context.Background(), Source{URL: srv.URL}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFetchBodyLimit(t *testing.T) {
	srv := serveRSS(t, testRSS)

	_, err := NewFetcher(Options{MaxBodyBytes: 64}).Fetch(context.Background(), Source{URL: srv.URL})
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	srv := serveRSS(t, testRSS)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFetcher(Options{}).Fetch(ctx, Source{URL: srv.URL}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestItemFromParsedFallbacks(t *testing.T) {
	now := time.Now()
	item := itemFromParsed(&gofeed.Item{
		GUID:          "g",
		Links:         []string{"https://example.com/alt"},
		Authors:       []*gofeed.Person{{Name: "Bob"}},
		Updated:       "yesterday",
		UpdatedParsed: &now,
	})
	if item.Link != "https://example.com/alt" {
		t.Errorf("link=%q, want first of Links", item.Link)
	}
	if item.Author != "Bob" {
		t.Errorf("author=%q, want Bob", item.Author)
	}
	if item.Published != "yesterday" || item.PublishedParsed != &now {
		t.Errorf("expected update date fallback, got %q %v", item.Published, item.PublishedParsed)
	}
}

func TestItemFromParsedNilAuthor(t *testing.T) {
	item := itemFromParsed(&gofeed.Item{GUID: "nil-author", Author: nil})
	if item.Author != "" {
		t.Errorf("author=%q, want empty", item.Author)
	}
}
