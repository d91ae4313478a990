package storage

import (
	"context"
	"sync"
)

const topicFeeds = "feeds"

func articlesTopic(feedID string) string {
	return "articles/" + feedID
}

// hub fans change notifications out to watchers. Each subscriber owns a
// one-slot channel, so bursts of changes collapse into a single wake-up.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan struct{}]struct{})}
}

func (h *hub) subscribe(topic string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan struct{}]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[topic], ch)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		h.mu.Unlock()
	}
}

// publishAll wakes every subscriber regardless of topic.
func (h *hub) publishAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.subs {
		for ch := range subs {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (h *hub) publish(topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		for ch := range h.subs[t] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// WatchFeeds streams the feed list: one snapshot immediately, then one
// after every committed change, including commits made by other processes
// sharing the database file. The channel closes when ctx is done.
func (s *SQLiteStore) WatchFeeds(ctx context.Context) <-chan []Feed {
	s.ext.start()
	return watch(ctx, s.hub, topicFeeds, s.root().ListFeeds)
}

// WatchArticles streams the articles of one feed, like WatchFeeds.
func (s *SQLiteStore) WatchArticles(ctx context.Context, feedID string) <-chan []Article {
	s.ext.start()
	return watch(ctx, s.hub, articlesTopic(feedID), func(ctx context.Context) ([]Article, error) {
		return s.root().ListArticlesForFeed(ctx, feedID)
	})
}

// root returns a store bound to the database rather than any transaction.
func (s *SQLiteStore) root() *SQLiteStore {
	if s.pending == nil {
		return s
	}
	return &SQLiteStore{db: s.db, q: s.db, hub: s.hub, ext: s.ext}
}

func watch[T any](ctx context.Context, h *hub, topic string, load func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	// Subscribe before the first load so no change slips between them.
	wake, unsubscribe := h.subscribe(topic)

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			// A failed load (usually ctx cancellation) skips the snapshot;
			// the next change triggers a fresh attempt.
			if snap, err := load(ctx); err == nil {
				offerLatest(out, snap)
			}
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
		}
	}()
	return out
}

// offerLatest places v in the one-slot channel, replacing any snapshot the
// consumer has not picked up yet.
func offerLatest[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
