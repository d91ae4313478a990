package newsie

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/matthewjhunter/newsie/internal/feeds"
	"github.com/matthewjhunter/newsie/internal/metrics"
	"github.com/matthewjhunter/newsie/internal/storage"
)

// DefaultWorkers bounds RefreshAll parallelism when EngineConfig.Workers is unset.
const DefaultWorkers = 4

// Fetcher turns a feed URL into a parsed document. *feeds.Fetcher is the
// production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, src feeds.Source) (*feeds.Result, error)
}

// Engine is the public API for newsie's feed synchronization.
// It reconciles fetched feeds with the local store.
type Engine struct {
	store   storage.Store
	fetcher Fetcher
	log     *slog.Logger
	metrics *metrics.Metrics
	workers int
	now     func() time.Time
}

// New creates a sync engine over an open store. The caller owns the store
// and closes it after the engine is no longer used.
func New(store storage.Store, fetcher Fetcher, cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:   store,
		fetcher: fetcher,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		workers: cfg.Workers,
		now:     cfg.Now,
	}
}

// AddFeed validates rawURL, fetches it and stores the feed together with
// its articles. Nothing is written unless every step succeeds.
func (e *Engine) AddFeed(ctx context.Context, rawURL, displayName string) (feed *Feed, err error) {
	const op = "add feed"
	start := time.Now()
	defer func() { e.record(op, start, err) }()

	u, err := validateURL(rawURL)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, URL: rawURL, Err: err}
	}

	existing, err := e.store.FindFeedByURL(ctx, u)
	if err != nil {
		return nil, &Error{Kind: KindStorage, Op: op, URL: u, Err: err}
	}
	if existing != nil {
		return nil, &Error{Kind: KindDuplicateFeed, Op: op, URL: u}
	}

	res, err := e.fetcher.Fetch(ctx, feeds.Source{URL: u})
	if err != nil {
		return nil, &Error{Kind: KindFetch, Op: op, URL: u, Err: err}
	}
	if res.NotModified || res.Document == nil {
		return nil, &Error{Kind: KindFetch, Op: op, URL: u, Err: fmt.Errorf("feed %s returned no document", u)}
	}

	now := e.now().UTC()
	row := storage.Feed{
		ID:           uuid.NewString(),
		URL:          u,
		Name:         strings.TrimSpace(displayName),
		ETag:         res.ETag,
		LastModified: res.LastModified,
		LastFetched:  &now,
		CreatedAt:    now,
	}
	applyMetadata(&row, res.Document)
	articles := e.newArticles(row.ID, res.Document.Items, nil, now)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// The writes must not be split by a late cancellation.
	pctx := context.WithoutCancel(ctx)
	err = e.store.InTx(pctx, func(tx storage.Store) error {
		if err := tx.InsertFeed(pctx, &row); err != nil {
			return err
		}
		return tx.InsertArticles(pctx, articles)
	})
	if err != nil {
		if errors.Is(err, storage.ErrConstraint) {
			if dup, ferr := e.store.FindFeedByURL(pctx, u); ferr == nil && dup != nil {
				return nil, &Error{Kind: KindDuplicateFeed, Op: op, URL: u}
			}
		}
		return nil, &Error{Kind: KindStorage, Op: op, URL: u, Err: err}
	}

	e.metrics.RecordIngested(len(articles))
	e.log.Info("feed added", "feed_id", row.ID, "url", u, "articles", len(articles))
	f := feedFromStorage(row)
	return &f, nil
}

// RefreshFeed fetches a stored feed again and stores the articles not seen
// before. It returns the feed's previously stored articles followed by the
// new ones.
func (e *Engine) RefreshFeed(ctx context.Context, feedID string) (articles []Article, err error) {
	const op = "refresh feed"
	start := time.Now()
	defer func() { e.record(op, start, err) }()

	out, err := e.refresh(ctx, op, feedID)
	if err != nil {
		return nil, err
	}
	return out.articles, nil
}

type refreshOutcome struct {
	articles    []Article
	added       int
	notModified bool
}

func (e *Engine) refresh(ctx context.Context, op, feedID string) (*refreshOutcome, error) {
	feed, err := e.store.GetFeed(ctx, feedID)
	if err != nil {
		return nil, storageError(op, feedID, err)
	}

	existing, err := e.store.ListArticlesForFeed(ctx, feed.ID)
	if err != nil {
		return nil, &Error{Kind: KindStorage, Op: op, URL: feed.URL, Err: err}
	}
	res, err := e.fetcher.Fetch(ctx, feeds.Source{
		URL:          feed.URL,
		ETag:         feed.ETag,
		LastModified: feed.LastModified,
	})
	if err != nil {
		return nil, &Error{Kind: KindFetch, Op: op, URL: feed.URL, Err: err}
	}
	if res.NotModified {
		e.metrics.RecordNotModified()
		e.log.Debug("feed not modified", "feed_id", feed.ID, "url", feed.URL)
		return &refreshOutcome{articles: articlesFromStorage(existing), notModified: true}, nil
	}
	if res.Document == nil {
		return nil, &Error{Kind: KindFetch, Op: op, URL: feed.URL, Err: fmt.Errorf("feed %s returned no document", feed.URL)}
	}

	now := e.now().UTC()
	updated := *feed
	applyMetadata(&updated, res.Document)
	updated.ETag = res.ETag
	updated.LastModified = res.LastModified
	updated.LastFetched = &now

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pctx := context.WithoutCancel(ctx)
	var fresh []storage.Article
	err = e.store.InTx(pctx, func(tx storage.Store) error {
		// Another refresh of this feed may have committed since the
		// fetch started; the keys are read again under the transaction.
		current, err := tx.ListArticlesForFeed(pctx, feed.ID)
		if err != nil {
			return err
		}
		existing = current
		fresh = e.newArticles(feed.ID, res.Document.Items, keysOf(existing), now)
		if err := tx.InsertArticles(pctx, fresh); err != nil {
			return err
		}
		return tx.UpdateFeedMetadata(pctx, &updated)
	})
	if err != nil {
		return nil, storageError(op, feed.URL, err)
	}

	e.metrics.RecordIngested(len(fresh))
	e.log.Debug("feed refreshed", "feed_id", feed.ID, "url", feed.URL, "new", len(fresh))

	all := append(articlesFromStorage(existing), articlesFromStorage(fresh)...)
	return &refreshOutcome{articles: all, added: len(fresh)}, nil
}

// DeleteFeed removes a feed and all of its articles in one transaction.
func (e *Engine) DeleteFeed(ctx context.Context, feedID string) (err error) {
	const op = "delete feed"
	start := time.Now()
	defer func() { e.record(op, start, err) }()

	err = e.store.InTx(ctx, func(tx storage.Store) error {
		if _, err := tx.GetFeed(ctx, feedID); err != nil {
			return err
		}
		if err := tx.DeleteArticlesForFeed(ctx, feedID); err != nil {
			return err
		}
		return tx.DeleteFeed(ctx, feedID)
	})
	if err != nil {
		return storageError(op, feedID, err)
	}
	e.log.Info("feed deleted", "feed_id", feedID)
	return nil
}

// RefreshAll refreshes every stored feed with bounded parallelism. A
// failing feed is counted and reported in the returned error; it does not
// stop the others. The summary is always non-nil when the feed list loads.
func (e *Engine) RefreshAll(ctx context.Context) (summary *RefreshSummary, err error) {
	const op = "refresh all"
	start := time.Now()
	defer func() { e.record(op, start, err) }()

	list, err := e.store.ListFeeds(ctx)
	if err != nil {
		return nil, &Error{Kind: KindStorage, Op: op, Err: err}
	}

	summary = &RefreshSummary{FeedsTotal: len(list)}
	var (
		mu   sync.Mutex
		errs *multierror.Error
		g    errgroup.Group
	)
	g.SetLimit(e.workers)

	for _, feed := range list {
		g.Go(func() error {
			out, err := e.refresh(ctx, "refresh feed", feed.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.FeedsErrored++
				errs = multierror.Append(errs, err)
				e.log.Warn("feed refresh failed", "feed_id", feed.ID, "url", feed.URL, "error", err)
			case out.notModified:
				summary.FeedsNotModified++
			default:
				summary.FeedsUpdated++
				summary.NewArticles += out.added
			}
			return nil
		})
	}
	g.Wait()

	e.log.Info("refresh complete",
		"feeds", summary.FeedsTotal,
		"updated", summary.FeedsUpdated,
		"not_modified", summary.FeedsNotModified,
		"errored", summary.FeedsErrored,
		"new_articles", summary.NewArticles)
	return summary, errs.ErrorOrNil()
}

// ImportOPML adds every feed listed in an OPML file. Feeds already present
// are skipped; feeds that fail validation or fetching are counted as failed.
func (e *Engine) ImportOPML(ctx context.Context, path string) (*ImportResult, error) {
	outlines, err := feeds.ReadOPML(path)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: "import opml", Err: err}
	}

	result := &ImportResult{}
	for _, o := range outlines {
		_, err := e.AddFeed(ctx, o.XMLURL, o.Title)
		switch {
		case err == nil:
			result.Added++
		case errors.Is(err, ErrDuplicateFeed):
			result.Skipped++
		case ctx.Err() != nil:
			return result, ctx.Err()
		default:
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
		}
	}
	e.log.Info("opml imported", "path", path, "added", result.Added, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// ExportOPML writes every stored feed to w as an OPML document.
func (e *Engine) ExportOPML(ctx context.Context, w io.Writer) error {
	list, err := e.ListFeeds(ctx)
	if err != nil {
		return err
	}
	outlines := make([]feeds.Outline, 0, len(list))
	for _, f := range list {
		outlines = append(outlines, feeds.Outline{
			Title:   f.DisplayName(),
			XMLURL:  f.URL,
			HTMLURL: f.SiteLink,
		})
	}
	return feeds.WriteOPML(w, "newsie subscriptions", outlines)
}

// RenameFeed sets the display name of a feed. An empty name restores the
// fetched title.
func (e *Engine) RenameFeed(ctx context.Context, feedID, name string) (*Feed, error) {
	const op = "rename feed"
	if err := e.store.RenameFeed(ctx, feedID, strings.TrimSpace(name)); err != nil {
		return nil, storageError(op, feedID, err)
	}
	return e.GetFeed(ctx, feedID)
}

// ListFeeds returns all feeds ordered by URL.
func (e *Engine) ListFeeds(ctx context.Context) ([]Feed, error) {
	list, err := e.store.ListFeeds(ctx)
	if err != nil {
		return nil, &Error{Kind: KindStorage, Op: "list feeds", Err: err}
	}
	return feedsFromStorage(list), nil
}

func (e *Engine) GetFeed(ctx context.Context, feedID string) (*Feed, error) {
	row, err := e.store.GetFeed(ctx, feedID)
	if err != nil {
		return nil, storageError("get feed", feedID, err)
	}
	f := feedFromStorage(*row)
	return &f, nil
}

// ResolveFeed finds a feed by ID or, failing that, by URL.
func (e *Engine) ResolveFeed(ctx context.Context, idOrURL string) (*Feed, error) {
	ref := strings.TrimSpace(idOrURL)
	f, err := e.GetFeed(ctx, ref)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return f, err
	}

	row, err := e.store.FindFeedByURL(ctx, ref)
	if err != nil {
		return nil, &Error{Kind: KindStorage, Op: "resolve feed", URL: ref, Err: err}
	}
	if row == nil {
		return nil, &Error{Kind: KindNotFound, Op: "resolve feed", URL: ref}
	}
	out := feedFromStorage(*row)
	return &out, nil
}

// ListArticles returns a feed's articles in stored order.
func (e *Engine) ListArticles(ctx context.Context, feedID string) ([]Article, error) {
	const op = "list articles"
	if _, err := e.store.GetFeed(ctx, feedID); err != nil {
		return nil, storageError(op, feedID, err)
	}
	rows, err := e.store.ListArticlesForFeed(ctx, feedID)
	if err != nil {
		return nil, storageError(op, feedID, err)
	}
	return articlesFromStorage(rows), nil
}

func (e *Engine) GetArticle(ctx context.Context, articleID string) (*Article, error) {
	row, err := e.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, storageError("get article", articleID, err)
	}
	a := articleFromStorage(*row)
	return &a, nil
}

// FeedStats returns the article count of every feed.
func (e *Engine) FeedStats(ctx context.Context) ([]FeedStats, error) {
	rows, err := e.store.FeedStats(ctx)
	if err != nil {
		return nil, &Error{Kind: KindStorage, Op: "feed stats", Err: err}
	}
	stats := make([]FeedStats, 0, len(rows))
	for _, s := range rows {
		stats = append(stats, FeedStats{FeedID: s.FeedID, URL: s.FeedURL, Title: s.Title, Articles: s.Articles})
	}
	return stats, nil
}

// WatchFeeds streams the feed list: one snapshot now and another after
// every change. A slow reader receives only the newest snapshot. The
// channel closes when ctx is done.
func (e *Engine) WatchFeeds(ctx context.Context) <-chan []Feed {
	return mapLatest(e.store.WatchFeeds(ctx), feedsFromStorage)
}

// WatchArticles streams one feed's articles the same way as WatchFeeds.
func (e *Engine) WatchArticles(ctx context.Context, feedID string) <-chan []Article {
	return mapLatest(e.store.WatchArticles(ctx, feedID), articlesFromStorage)
}

func mapLatest[S, T any](in <-chan S, conv func(S) T) <-chan T {
	out := make(chan T, 1)
	go func() {
		defer close(out)
		for v := range in {
			t := conv(v)
			select {
			case out <- t:
				continue
			default:
			}
			// Replace the unread snapshot; this goroutine is the only sender.
			select {
			case <-out:
			default:
			}
			out <- t
		}
	}()
	return out
}

func (e *Engine) record(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	e.metrics.RecordOp(op, result, start)
}

// validateURL trims raw and accepts only absolute http(s) URLs with a host.
func validateURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", errors.New("url is empty")
	}
	parsed, err := url.ParseRequestURI(u)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("url has no host")
	}
	return u, nil
}

// keysOf returns the de-duplication keys of stored articles.
func keysOf(articles []storage.Article) map[string]struct{} {
	known := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		known[dedupKey(a.GUID, a.Link)] = struct{}{}
	}
	return known
}

// dedupKey identifies an article within its feed: the guid when present,
// otherwise the link.
func dedupKey(guid, link string) string {
	if guid != "" {
		return guid
	}
	return link
}

// newArticles builds storage rows for the items whose key is neither in
// known nor repeated earlier in the same document, keeping document order.
func (e *Engine) newArticles(feedID string, items []feeds.Item, known map[string]struct{}, now time.Time) []storage.Article {
	seen := make(map[string]struct{}, len(items))
	out := make([]storage.Article, 0, len(items))
	for _, it := range items {
		key := dedupKey(it.GUID, it.Link)
		if _, ok := known[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, storage.Article{
			ID:          uuid.NewString(),
			FeedID:      feedID,
			GUID:        it.GUID,
			Link:        it.Link,
			Title:       it.Title,
			Author:      it.Author,
			Description: it.Description,
			Content:     it.Content,
			Image:       storage.Image{URL: it.Image.URL, Title: it.Image.Title},
			PublishedAt: publishedAt(it, now),
			FetchedAt:   now,
		})
	}
	return out
}

// publishedAt picks the item's parsed date, then a lenient parse of the raw
// string, then the ingestion time.
func publishedAt(it feeds.Item, now time.Time) time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed.UTC()
	}
	if raw := strings.TrimSpace(it.Published); raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC()
		}
	}
	return now
}

func applyMetadata(f *storage.Feed, doc *feeds.Document) {
	f.Title = doc.Title
	f.Description = doc.Description
	f.SiteLink = doc.Link
	f.Image = storage.Image{URL: doc.Image.URL, Title: doc.Image.Title}
	if doc.Image.URL != "" {
		f.Image.Link = doc.Link
	}
}

// storageError maps store failures, turning ErrNotFound into KindNotFound.
func storageError(op, ref string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &Error{Kind: KindNotFound, Op: op, URL: ref}
	}
	return &Error{Kind: KindStorage, Op: op, URL: ref, Err: err}
}
