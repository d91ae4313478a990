package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/matthewjhunter/newsie"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
	md     *md.Converter
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return NewFormatterWithWriters(format, os.Stdout, os.Stderr)
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
		md:     md.NewConverter("", true, nil),
	}
}

// Valid reports whether the format is one the formatter understands.
func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatText, FormatHuman:
		return true
	}
	return false
}

// OutputFeed outputs a single feed, e.g. after add or rename.
func (f *Formatter) OutputFeed(feed *newsie.Feed) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(feed)
	case FormatText:
		fmt.Fprintf(f.out, "id=%s\turl=%s\ttitle=%s\tlast_fetched=%s\n",
			feed.ID, feed.URL, feed.DisplayName(), formatTime(feed.LastFetched))
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s\n", feed.DisplayName())
		fmt.Fprintf(f.out, "  ID:  %s\n", feed.ID)
		fmt.Fprintf(f.out, "  URL: %s\n", feed.URL)
		if feed.Description != "" {
			fmt.Fprintf(f.out, "  %s\n", truncate(feed.Description, 200))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputFeedList outputs feeds with their article counts.
func (f *Formatter) OutputFeedList(stats []newsie.FeedStats) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(stats)
	case FormatText:
		for _, s := range stats {
			fmt.Fprintf(f.out, "id=%s\turl=%s\ttitle=%s\tarticles=%d\n", s.FeedID, s.URL, s.Title, s.Articles)
		}
		return nil
	case FormatHuman:
		if len(stats) == 0 {
			fmt.Fprintln(f.out, "No feeds")
			return nil
		}
		fmt.Fprintf(f.out, "Feeds (%d):\n\n", len(stats))
		for _, s := range stats {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			fmt.Fprintf(f.out, "  • %s (%d articles)\n", title, s.Articles)
			fmt.Fprintf(f.out, "    %s  %s\n", s.FeedID, s.URL)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputArticleList outputs a list of articles
func (f *Formatter) OutputArticleList(articles []newsie.Article) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(articles)
	case FormatText:
		for _, a := range articles {
			fmt.Fprintf(f.out, "id=%s\ttitle=%s\turl=%s\tpublished=%s\n",
				a.ID, a.Title, a.Link, a.PublishedAt.Format(time.RFC3339))
		}
		return nil
	case FormatHuman:
		if len(articles) == 0 {
			fmt.Fprintln(f.out, "No articles")
			return nil
		}
		fmt.Fprintf(f.out, "Articles (%d):\n\n", len(articles))
		for _, a := range articles {
			fmt.Fprintf(f.out, "ID: %s\n", a.ID)
			fmt.Fprintf(f.out, "Title: %s\n", a.Title)
			fmt.Fprintf(f.out, "URL: %s\n", a.Link)
			fmt.Fprintf(f.out, "Published: %s\n", a.PublishedAt.Format("2006-01-02 15:04"))
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputArticle outputs one article in full. Human output renders the
// article HTML as Markdown.
func (f *Formatter) OutputArticle(a *newsie.Article) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(a)
	case FormatText:
		fmt.Fprintf(f.out, "id=%s\tfeed_id=%s\ttitle=%s\turl=%s\tauthor=%s\tpublished=%s\n",
			a.ID, a.FeedID, a.Title, a.Link, a.Author, a.PublishedAt.Format(time.RFC3339))
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "# %s\n\n", a.Title)
		if a.Author != "" {
			fmt.Fprintf(f.out, "By %s, ", a.Author)
		}
		fmt.Fprintf(f.out, "%s\n%s\n\n", a.PublishedAt.Format("2006-01-02 15:04"), a.Link)

		body := a.Content
		if body == "" {
			body = a.Description
		}
		text, err := f.md.ConvertString(body)
		if err != nil {
			// Fall back to the raw HTML rather than failing the command.
			text = body
		}
		fmt.Fprintln(f.out, strings.TrimSpace(text))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputRefreshSummary outputs the result of a refresh-all cycle.
func (f *Formatter) OutputRefreshSummary(s *newsie.RefreshSummary) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(s)
	case FormatText:
		fmt.Fprintf(f.out, "feeds_total=%d\n", s.FeedsTotal)
		fmt.Fprintf(f.out, "feeds_updated=%d\n", s.FeedsUpdated)
		fmt.Fprintf(f.out, "feeds_not_modified=%d\n", s.FeedsNotModified)
		fmt.Fprintf(f.out, "feeds_errored=%d\n", s.FeedsErrored)
		fmt.Fprintf(f.out, "new_articles=%d\n", s.NewArticles)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Refreshed %d feeds: %d updated, %d unchanged",
			s.FeedsTotal, s.FeedsUpdated, s.FeedsNotModified)
		if s.FeedsErrored > 0 {
			fmt.Fprintf(f.out, ", %d errors", s.FeedsErrored)
		}
		fmt.Fprintf(f.out, "\nFetched %d new articles\n", s.NewArticles)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputImportResult outputs the result of an OPML import.
func (f *Formatter) OutputImportResult(r *newsie.ImportResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(r)
	case FormatText:
		fmt.Fprintf(f.out, "added=%d\nskipped=%d\nfailed=%d\n", r.Added, r.Skipped, r.Failed)
		for _, e := range r.Errors {
			fmt.Fprintf(f.out, "error=%s\n", e)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Imported %d feeds (%d already present, %d failed)\n", r.Added, r.Skipped, r.Failed)
		for _, e := range r.Errors {
			fmt.Fprintf(f.out, "  ✗ %s\n", e)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error reports a failed command on stderr. The json format writes an
// object with the message and, when known, the error kind.
func (f *Formatter) Error(err error) {
	if f.format == FormatJSON {
		body := map[string]string{"error": err.Error()}
		if k := newsie.KindOf(err); k != newsie.KindUnknown {
			body["kind"] = k.String()
		}
		json.NewEncoder(f.err).Encode(body)
		return
	}
	fmt.Fprintf(f.err, "Error: %v\n", err)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
