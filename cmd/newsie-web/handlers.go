package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/microcosm-cc/bluemonday"

	"github.com/matthewjhunter/newsie"
)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine   *newsie.Engine
	policy   *bluemonday.Policy
	log      *slog.Logger
	upgrader websocket.Upgrader
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type addFeedRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type renameFeedRequest struct {
	Name string `json:"name"`
}

type refreshAllResponse struct {
	Summary *newsie.RefreshSummary `json:"summary"`
	Errors  []string               `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch newsie.KindOf(err) {
	case newsie.KindValidation:
		return http.StatusBadRequest
	case newsie.KindNotFound:
		return http.StatusNotFound
	case newsie.KindDuplicateFeed:
		return http.StatusConflict
	case newsie.KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
	}
	body := errorBody{Error: err.Error()}
	if k := newsie.KindOf(err); k != newsie.KindUnknown {
		body.Kind = k.String()
	}
	writeJSON(w, status, body)
}

// --- Feeds ---

func (h *handlers) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListFeeds(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req addFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	feed, err := h.engine.AddFeed(r.Context(), req.URL, req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, feed)
}

func (h *handlers) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.engine.GetFeed(r.Context(), r.PathValue("feedID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *handlers) handleRenameFeed(w http.ResponseWriter, r *http.Request) {
	var req renameFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	feed, err := h.engine.RenameFeed(r.Context(), r.PathValue("feedID"), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *handlers) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteFeed(r.Context(), r.PathValue("feedID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	articles, err := h.engine.RefreshFeed(r.Context(), r.PathValue("feedID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *handlers) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.RefreshAll(r.Context())
	if summary == nil {
		h.writeError(w, err)
		return
	}

	resp := refreshAllResponse{Summary: summary}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			resp.Errors = append(resp.Errors, e.Error())
		}
	} else if err != nil {
		resp.Errors = []string{err.Error()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.FeedStats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Articles ---

func (h *handlers) handleListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := h.engine.ListArticles(r.Context(), r.PathValue("feedID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

// handleGetArticle returns one article with its HTML sanitized for display.
func (h *handlers) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.engine.GetArticle(r.Context(), r.PathValue("articleID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	article.Content = h.policy.Sanitize(article.Content)
	article.Description = h.policy.Sanitize(article.Description)
	writeJSON(w, http.StatusOK, article)
}

// --- Live snapshots ---

func (h *handlers) handleWatchFeeds(w http.ResponseWriter, r *http.Request) {
	serveSnapshots(h, w, r, h.engine.WatchFeeds)
}

func (h *handlers) handleWatchArticles(w http.ResponseWriter, r *http.Request) {
	feedID := r.PathValue("feedID")
	if _, err := h.engine.GetFeed(r.Context(), feedID); err != nil {
		h.writeError(w, err)
		return
	}
	serveSnapshots(h, w, r, func(ctx context.Context) <-chan []newsie.Article {
		return h.engine.WatchArticles(ctx, feedID)
	})
}

// serveSnapshots upgrades to a websocket and writes every snapshot from
// watch as one JSON message until either side goes away.
func serveSnapshots[T any](h *handlers, w http.ResponseWriter, r *http.Request, watch func(context.Context) <-chan T) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	// Server read/write timeouts do not apply to a long-lived stream.
	conn.NetConn().SetDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is the only way to notice the client closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for snapshot := range watch(ctx) {
		if err := conn.WriteJSON(snapshot); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket write failed", "error", err)
			}
			return
		}
	}
}
