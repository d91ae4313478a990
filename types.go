package newsie

import (
	"log/slog"
	"time"

	"github.com/matthewjhunter/newsie/internal/metrics"
)

// EngineConfig configures the newsie sync engine.
type EngineConfig struct {
	Logger  *slog.Logger     // defaults to slog.Default()
	Metrics *metrics.Metrics // nil disables metrics
	Workers int              // RefreshAll parallelism; defaults to DefaultWorkers
	Now     func() time.Time // clock used for ingestion timestamps; defaults to time.Now
}

// Image is a picture attached to a feed or article.
type Image struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	Link  string `json:"link,omitempty"`
}

// Feed represents an RSS/Atom feed subscription.
type Feed struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Name         string     `json:"name,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	SiteLink     string     `json:"site_link,omitempty"`
	Image        *Image     `json:"image,omitempty"`
	ETag         string     `json:"-"`
	LastModified string     `json:"-"`
	LastFetched  *time.Time `json:"last_fetched,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DisplayName returns the user's name for the feed, falling back to the
// fetched title and then the URL.
func (f Feed) DisplayName() string {
	switch {
	case f.Name != "":
		return f.Name
	case f.Title != "":
		return f.Title
	default:
		return f.URL
	}
}

// Article represents a feed article.
type Article struct {
	ID          string    `json:"id"`
	FeedID      string    `json:"feed_id"`
	GUID        string    `json:"guid,omitempty"`
	Link        string    `json:"link"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	Image       *Image    `json:"image,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// FeedStats holds per-feed article counts.
type FeedStats struct {
	FeedID   string `json:"feed_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Articles int    `json:"articles"`
}

// RefreshSummary holds the results of a RefreshAll cycle.
type RefreshSummary struct {
	FeedsTotal       int `json:"feeds_total"`
	FeedsUpdated     int `json:"feeds_updated"`
	FeedsNotModified int `json:"feeds_not_modified"`
	FeedsErrored     int `json:"feeds_errored"`
	NewArticles      int `json:"new_articles"`
}

// ImportResult reports the outcome of an OPML import.
type ImportResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
