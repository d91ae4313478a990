package storage

import "context"

// Store defines the storage interface for newsie's data layer.
//
// Writes made through a Store returned to an InTx callback become visible
// (and are announced to watchers) only when the transaction commits.
type Store interface {
	Close() error

	// InTx runs fn against a transaction-scoped Store. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error

	// Feeds
	InsertFeed(ctx context.Context, feed *Feed) error
	GetFeed(ctx context.Context, id string) (*Feed, error)
	FindFeedByURL(ctx context.Context, url string) (*Feed, error)
	ListFeeds(ctx context.Context) ([]Feed, error)
	UpdateFeedMetadata(ctx context.Context, feed *Feed) error
	RenameFeed(ctx context.Context, id, name string) error
	DeleteFeed(ctx context.Context, id string) error
	FeedStats(ctx context.Context) ([]FeedStats, error)

	// Articles
	InsertArticles(ctx context.Context, batch []Article) error
	ListArticlesForFeed(ctx context.Context, feedID string) ([]Article, error)
	GetArticle(ctx context.Context, id string) (*Article, error)
	DeleteArticlesForFeed(ctx context.Context, feedID string) error

	// Live queries
	WatchFeeds(ctx context.Context) <-chan []Feed
	WatchArticles(ctx context.Context, feedID string) <-chan []Article
}
