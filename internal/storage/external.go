package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// externalWatch wakes every watcher when another connection commits to the
// database file. Commits made through this store are announced by the hub
// directly; PRAGMA data_version tells the two apart, since it only moves
// for commits from other connections.
type externalWatch struct {
	path string
	db   *sql.DB
	hub  *hub

	once    sync.Once
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

func newExternalWatch(dbPath string, db *sql.DB, h *hub) *externalWatch {
	return &externalWatch{path: dbPath, db: db, hub: h}
}

// start begins watching on first use. Without a file to watch (an
// in-memory database) or when the watcher cannot be created, watchers
// only see this store's own commits.
func (x *externalWatch) start() {
	x.once.Do(func() {
		if x.path == "" || strings.HasPrefix(x.path, ":memory:") || strings.HasPrefix(x.path, "file:") {
			return
		}
		// The baseline is read before any watcher's first snapshot, so a
		// commit landing in between is either in that snapshot or seen as
		// a version change.
		version, err := dataVersion(x.db)
		if err != nil {
			return
		}
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return
		}
		// The journal and WAL files come and go, so the directory is
		// watched rather than the files themselves.
		if err := w.Add(filepath.Dir(x.path)); err != nil {
			w.Close()
			return
		}

		x.mu.Lock()
		defer x.mu.Unlock()
		if x.closed {
			w.Close()
			return
		}
		x.watcher = w
		go x.loop(w, filepath.Base(x.path), version)
	})
}

func (x *externalWatch) close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	if x.watcher != nil {
		x.watcher.Close()
		x.watcher = nil
	}
}

func (x *externalWatch) loop(w *fsnotify.Watcher, base string, version int64) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			v, err := dataVersion(x.db)
			if err != nil || v == version {
				continue
			}
			version = v
			x.hub.publishAll()
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

func dataVersion(db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(context.Background(), "PRAGMA data_version").Scan(&v)
	return v, err
}
