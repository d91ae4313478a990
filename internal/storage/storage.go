package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned by single-row lookups that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrConstraint wraps unique, primary-key and foreign-key violations.
	ErrConstraint = errors.New("constraint violation")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteStore struct {
	db  *sql.DB
	q   querier
	hub *hub
	ext *externalWatch

	// pending collects change topics while inside a transaction; nil otherwise.
	pending map[string]struct{}
}

// Image is a picture attached to a feed or article.
type Image struct {
	URL   string
	Title string
	Link  string
}

type Feed struct {
	ID           string
	URL          string
	Name         string
	Title        string
	Description  string
	SiteLink     string
	Image        Image
	ETag         string
	LastModified string
	LastFetched  *time.Time
	CreatedAt    time.Time
}

type Article struct {
	Seq         int64
	ID          string
	FeedID      string
	GUID        string
	Link        string
	Title       string
	Author      string
	Description string
	Content     string
	Image       Image
	PublishedAt time.Time
	FetchedAt   time.Time
}

// FeedStats holds per-feed article counts.
type FeedStats struct {
	FeedID   string
	FeedURL  string
	Title    string
	Articles int
}

// NewSQLiteStore opens the database at dbPath and initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions
	// from tripping over each other with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Migrations for databases created before the image and validator columns.
	migrations := []string{
		"ALTER TABLE feeds ADD COLUMN site_link TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE feeds ADD COLUMN etag TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE feeds ADD COLUMN last_modified TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE articles ADD COLUMN image_url TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE articles ADD COLUMN image_title TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE articles ADD COLUMN image_link TEXT NOT NULL DEFAULT ''",
	}
	for _, m := range migrations {
		db.Exec(m) // ignore "duplicate column" errors
	}

	h := newHub()
	return &SQLiteStore{db: db, q: db, hub: h, ext: newExternalWatch(dbPath, db, h)}, nil
}

// Close closes the database connection. Closing a transaction-scoped
// store is a no-op.
func (s *SQLiteStore) Close() error {
	if s.pending != nil {
		return nil
	}
	s.ext.close()
	return s.db.Close()
}

// InTx runs fn inside a single transaction. Nested calls join the
// outer transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pending != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txStore := &SQLiteStore{db: s.db, q: tx, hub: s.hub, ext: s.ext, pending: make(map[string]struct{})}

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	topics := make([]string, 0, len(txStore.pending))
	for t := range txStore.pending {
		topics = append(topics, t)
	}
	s.hub.publish(topics...)
	return nil
}

// changed announces a mutation, deferring it until commit inside a transaction.
func (s *SQLiteStore) changed(topics ...string) {
	if s.pending != nil {
		for _, t := range topics {
			s.pending[t] = struct{}{}
		}
		return
	}
	s.hub.publish(topics...)
}

// mapError translates driver constraint failures into ErrConstraint.
func mapError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		}
	}
	return err
}

// Feed management

const feedColumns = `id, url, name, title, description, site_link,
	image_url, image_title, image_link, etag, last_modified, last_fetched, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(row scanner) (Feed, error) {
	var f Feed
	err := row.Scan(&f.ID, &f.URL, &f.Name, &f.Title, &f.Description, &f.SiteLink,
		&f.Image.URL, &f.Image.Title, &f.Image.Link, &f.ETag, &f.LastModified,
		&f.LastFetched, &f.CreatedAt)
	return f, err
}

// InsertFeed adds a new feed. CreatedAt is set when zero.
func (s *SQLiteStore) InsertFeed(ctx context.Context, feed *Feed) error {
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO feeds (`+feedColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.ID, feed.URL, feed.Name, feed.Title, feed.Description, feed.SiteLink,
		feed.Image.URL, feed.Image.Title, feed.Image.Link, feed.ETag, feed.LastModified,
		feed.LastFetched, feed.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add feed: %w", mapError(err))
	}
	s.changed(topicFeeds)
	return nil
}

// GetFeed returns a single feed by ID, or ErrNotFound.
func (s *SQLiteStore) GetFeed(ctx context.Context, id string) (*Feed, error) {
	f, err := scanFeed(s.q.QueryRowContext(ctx,
		"SELECT "+feedColumns+" FROM feeds WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get feed %s: %w", id, err)
	}
	return &f, nil
}

// FindFeedByURL returns the feed subscribed at url, or nil when there is none.
func (s *SQLiteStore) FindFeedByURL(ctx context.Context, url string) (*Feed, error) {
	f, err := scanFeed(s.q.QueryRowContext(ctx,
		"SELECT "+feedColumns+" FROM feeds WHERE url = ? LIMIT 1", url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find feed by url: %w", err)
	}
	return &f, nil
}

// ListFeeds returns all feeds ordered by URL.
func (s *SQLiteStore) ListFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+feedColumns+" FROM feeds ORDER BY url ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	feeds := []Feed{}
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// UpdateFeedMetadata stores the fetched metadata, HTTP validators and
// last_fetched timestamp. Name and URL are left alone.
func (s *SQLiteStore) UpdateFeedMetadata(ctx context.Context, feed *Feed) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE feeds SET title = ?, description = ?, site_link = ?,
		   image_url = ?, image_title = ?, image_link = ?,
		   etag = ?, last_modified = ?, last_fetched = ?
		 WHERE id = ?`,
		feed.Title, feed.Description, feed.SiteLink,
		feed.Image.URL, feed.Image.Title, feed.Image.Link,
		feed.ETag, feed.LastModified, feed.LastFetched, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update feed metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feed %s: %w", feed.ID, ErrNotFound)
	}
	s.changed(topicFeeds)
	return nil
}

// RenameFeed sets the display name of a feed. An empty name clears the override.
func (s *SQLiteStore) RenameFeed(ctx context.Context, id, name string) error {
	res, err := s.q.ExecContext(ctx, "UPDATE feeds SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("failed to rename feed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feed %s: %w", id, ErrNotFound)
	}
	s.changed(topicFeeds)
	return nil
}

// DeleteFeed removes a feed row. Callers remove articles first (or rely on
// ON DELETE CASCADE).
func (s *SQLiteStore) DeleteFeed(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	s.changed(topicFeeds, articlesTopic(id))
	return nil
}

// FeedStats returns article counts per feed, ordered like ListFeeds.
func (s *SQLiteStore) FeedStats(ctx context.Context) ([]FeedStats, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT f.id, f.url, CASE WHEN f.name != '' THEN f.name ELSE f.title END, COUNT(a.seq)
		FROM feeds f
		LEFT JOIN articles a ON a.feed_id = f.id
		GROUP BY f.id, f.url
		ORDER BY f.url ASC`)
	if err != nil {
		return nil, fmt.Errorf("get feed stats: %w", err)
	}
	defer rows.Close()

	var stats []FeedStats
	for rows.Next() {
		var fs FeedStats
		if err := rows.Scan(&fs.FeedID, &fs.FeedURL, &fs.Title, &fs.Articles); err != nil {
			return nil, fmt.Errorf("scan feed stats: %w", err)
		}
		stats = append(stats, fs)
	}
	return stats, rows.Err()
}

// Article management

const articleColumns = `seq, id, feed_id, guid, link, title, author, description, content,
	image_url, image_title, image_link, published_at, fetched_at`

func scanArticle(row scanner) (Article, error) {
	var a Article
	err := row.Scan(&a.Seq, &a.ID, &a.FeedID, &a.GUID, &a.Link, &a.Title, &a.Author,
		&a.Description, &a.Content, &a.Image.URL, &a.Image.Title, &a.Image.Link,
		&a.PublishedAt, &a.FetchedAt)
	return a, err
}

// InsertArticles stores a batch of articles in order. Outside a transaction
// the batch is wrapped in one so it lands all-or-nothing.
func (s *SQLiteStore) InsertArticles(ctx context.Context, batch []Article) error {
	if len(batch) == 0 {
		return nil
	}
	if s.pending == nil {
		return s.InTx(ctx, func(tx Store) error {
			return tx.InsertArticles(ctx, batch)
		})
	}

	feedIDs := make(map[string]struct{})
	for i := range batch {
		a := &batch[i]
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO articles (id, feed_id, guid, link, title, author, description, content,
			   image_url, image_title, image_link, published_at, fetched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.FeedID, a.GUID, a.Link, a.Title, a.Author, a.Description, a.Content,
			a.Image.URL, a.Image.Title, a.Image.Link, a.PublishedAt, a.FetchedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to add article: %w", mapError(err))
		}
		if seq, err := res.LastInsertId(); err == nil {
			a.Seq = seq
		}
		feedIDs[a.FeedID] = struct{}{}
	}
	for id := range feedIDs {
		s.changed(articlesTopic(id))
	}
	return nil
}

// ListArticlesForFeed returns a feed's articles in insertion order.
func (s *SQLiteStore) ListArticlesForFeed(ctx context.Context, feedID string) ([]Article, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE feed_id = ? ORDER BY seq ASC", feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles for feed: %w", err)
	}
	defer rows.Close()

	articles := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// GetArticle returns a single article by ID, or ErrNotFound.
func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (*Article, error) {
	a, err := scanArticle(s.q.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	return &a, nil
}

// DeleteArticlesForFeed removes every article owned by feedID.
func (s *SQLiteStore) DeleteArticlesForFeed(ctx context.Context, feedID string) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM articles WHERE feed_id = ?", feedID); err != nil {
		return fmt.Errorf("failed to delete articles: %w", err)
	}
	s.changed(articlesTopic(feedID))
	return nil
}
