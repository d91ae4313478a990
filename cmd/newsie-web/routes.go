package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewjhunter/newsie"
)

type routerOptions struct {
	Logger    *slog.Logger
	JWTSecret []byte // empty disables auth
}

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(engine *newsie.Engine, opts routerOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handlers{
		engine: engine,
		policy: bluemonday.UGCPolicy(),
		log:    opts.Logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
		},
	}

	api := http.NewServeMux()

	// Feeds
	api.HandleFunc("GET /api/feeds", h.handleListFeeds)
	api.HandleFunc("POST /api/feeds", h.handleAddFeed)
	api.HandleFunc("GET /api/feeds/{feedID}", h.handleGetFeed)
	api.HandleFunc("PATCH /api/feeds/{feedID}", h.handleRenameFeed)
	api.HandleFunc("DELETE /api/feeds/{feedID}", h.handleDeleteFeed)
	api.HandleFunc("POST /api/feeds/{feedID}/refresh", h.handleRefreshFeed)
	api.HandleFunc("GET /api/feeds/{feedID}/articles", h.handleListArticles)
	api.HandleFunc("POST /api/refresh", h.handleRefreshAll)
	api.HandleFunc("GET /api/stats", h.handleStats)

	// Articles
	api.HandleFunc("GET /api/articles/{articleID}", h.handleGetArticle)

	// Live snapshots
	api.HandleFunc("GET /api/watch/feeds", h.handleWatchFeeds)
	api.HandleFunc("GET /api/watch/feeds/{feedID}/articles", h.handleWatchArticles)

	mux := http.NewServeMux()
	mux.Handle("/api/", authenticate(opts.JWTSecret, api))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}
