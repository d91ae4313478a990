package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("watch channel closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

func expectQuiet[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected snapshot: %v", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchFeedsInitialSnapshotAndUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := store.WatchFeeds(ctx)
	if got := receive(t, snaps); len(got) != 0 {
		t.Fatalf("initial snapshot should be empty, got %d feeds", len(got))
	}

	addTestFeed(t, store, "f1", "https://example.com/feed")
	if got := receive(t, snaps); len(got) != 1 || got[0].ID != "f1" {
		t.Fatalf("expected snapshot with f1, got %+v", got)
	}

	if err := store.DeleteFeed(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFeed failed: %v", err)
	}
	if got := receive(t, snaps); len(got) != 0 {
		t.Fatalf("expected empty snapshot after delete, got %d", len(got))
	}
}

func TestWatchIgnoresRolledBackTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := store.WatchFeeds(ctx)
	receive(t, snaps)

	store.InTx(ctx, func(tx Store) error {
		tx.InsertFeed(ctx, &Feed{ID: "f1", URL: "https://example.com/feed"})
		return errors.New("abort")
	})
	expectQuiet(t, snaps)
}

func TestWatchArticlesScopedToFeed(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addTestFeed(t, store, "f1", "https://example.com/one")
	addTestFeed(t, store, "f2", "https://example.com/two")

	snaps := store.WatchArticles(ctx, "f1")
	receive(t, snaps)

	store.InsertArticles(ctx, []Article{testArticle("f2", "b1", "g", "https://example.com/b")})
	expectQuiet(t, snaps)

	store.InsertArticles(ctx, []Article{testArticle("f1", "a1", "g", "https://example.com/a")})
	if got := receive(t, snaps); len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected snapshot with a1, got %+v", got)
	}
}

func TestWatchDeliversLatestSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := store.WatchFeeds(ctx)
	// Do not read the initial snapshot: later ones must replace it.
	addTestFeed(t, store, "a", "https://a.example/rss")
	addTestFeed(t, store, "b", "https://b.example/rss")
	addTestFeed(t, store, "c", "https://c.example/rss")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-snaps:
			if len(got) == 3 {
				return
			}
		case <-deadline:
			t.Fatal("never observed the latest snapshot")
		}
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	snaps := store.WatchFeeds(ctx)
	receive(t, snaps)
	cancel()

	select {
	case _, ok := <-snaps:
		if ok {
			// A snapshot may have raced the cancellation; the next read must see the close.
			if _, ok := <-snaps; ok {
				t.Fatal("channel should be closed after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatchSeesCommitsFromAnotherConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	open := func() *SQLiteStore {
		store, err := NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	}
	watcher, writer := open(), open()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feedSnaps := watcher.WatchFeeds(ctx)
	if got := receive(t, feedSnaps); len(got) != 0 {
		t.Fatalf("initial snapshot should be empty, got %d feeds", len(got))
	}

	addTestFeed(t, writer, "f1", "https://example.com/feed")
	if got := receive(t, feedSnaps); len(got) != 1 || got[0].ID != "f1" {
		t.Fatalf("expected snapshot with f1, got %+v", got)
	}

	articleSnaps := watcher.WatchArticles(ctx, "f1")
	receive(t, articleSnaps)
	if err := writer.InsertArticles(ctx, []Article{testArticle("f1", "a1", "g", "https://example.com/a")}); err != nil {
		t.Fatalf("InsertArticles failed: %v", err)
	}
	if got := receive(t, articleSnaps); len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected snapshot with a1, got %+v", got)
	}
}

func TestWatchOwnCommitNotifiesOnce(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := store.WatchFeeds(ctx)
	receive(t, snaps)

	addTestFeed(t, store, "f1", "https://example.com/feed")
	if got := receive(t, snaps); len(got) != 1 {
		t.Fatalf("expected snapshot with one feed, got %d", len(got))
	}
	// The file events from this store's own write must not wake it again.
	expectQuiet(t, snaps)
}
