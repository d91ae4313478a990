package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matthewjhunter/newsie"
)

// tools holds the dependencies shared by every tool handler.
type tools struct {
	engine *newsie.Engine
	poller *poller
}

type refreshAllResult struct {
	Summary *newsie.RefreshSummary `json:"summary"`
	Errors  []string               `json:"errors,omitempty"`
}

func newServer(engine *newsie.Engine, p *poller) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "newsie", Version: version}, nil)
	t := &tools{engine: engine, poller: p}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "feeds_list",
		Description: "List all subscribed feeds with their IDs, URLs and titles.",
	}, t.feedsList)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "feed_add",
		Description: "Subscribe to an RSS/Atom feed. The feed is fetched immediately and its articles stored.",
	}, t.feedAdd)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "feed_refresh",
		Description: "Fetch one feed again and store any new articles. Returns the feed's articles.",
	}, t.feedRefresh)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "feeds_refresh_all",
		Description: "Fetch every subscribed feed and report how many were updated and how many new articles arrived.",
	}, t.feedsRefreshAll)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "feed_delete",
		Description: "Unsubscribe from a feed and delete its stored articles.",
	}, t.feedDelete)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "feed_rename",
		Description: "Set a feed's display name.",
	}, t.feedRename)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "feed_articles",
		Description: "List a feed's stored articles without their full content.",
	}, t.feedArticles)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "article_get",
		Description: "Get one article including its full content.",
	}, t.articleGet)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "feed_stats",
		Description: "Show the number of stored articles per feed.",
	}, t.feedStats)

	return server
}

func (t *tools) feedsList(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	list, err := t.engine.ListFeeds(ctx)
	if err != nil {
		return toolError(err), nil, nil
	}
	if list == nil {
		list = []newsie.Feed{}
	}
	return toolJSON(list), nil, nil
}

func (t *tools) feedAdd(ctx context.Context, _ *mcp.CallToolRequest, in feedAddInput) (*mcp.CallToolResult, any, error) {
	feed, err := t.engine.AddFeed(ctx, in.URL, in.Name)
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolText("Subscribed to %s (id %s).", feed.DisplayName(), feed.ID), nil, nil
}

func (t *tools) feedRefresh(ctx context.Context, _ *mcp.CallToolRequest, in feedRefInput) (*mcp.CallToolResult, any, error) {
	feed, err := t.engine.ResolveFeed(ctx, in.Feed)
	if err != nil {
		return toolError(err), nil, nil
	}
	articles, err := t.engine.RefreshFeed(ctx, feed.ID)
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSON(withoutContent(articles)), nil, nil
}

func (t *tools) feedsRefreshAll(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	summary, err := t.poller.poll(ctx)
	if summary == nil {
		return toolError(err), nil, nil
	}
	res := refreshAllResult{Summary: summary}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			res.Errors = append(res.Errors, e.Error())
		}
	} else if err != nil {
		res.Errors = []string{err.Error()}
	}
	return toolJSON(res), nil, nil
}

func (t *tools) feedDelete(ctx context.Context, _ *mcp.CallToolRequest, in feedRefInput) (*mcp.CallToolResult, any, error) {
	feed, err := t.engine.ResolveFeed(ctx, in.Feed)
	if err != nil {
		return toolError(err), nil, nil
	}
	if err := t.engine.DeleteFeed(ctx, feed.ID); err != nil {
		return toolError(err), nil, nil
	}
	return toolText("Unsubscribed from %s.", feed.DisplayName()), nil, nil
}

func (t *tools) feedRename(ctx context.Context, _ *mcp.CallToolRequest, in feedRenameInput) (*mcp.CallToolResult, any, error) {
	feed, err := t.engine.ResolveFeed(ctx, in.Feed)
	if err != nil {
		return toolError(err), nil, nil
	}
	feed, err = t.engine.RenameFeed(ctx, feed.ID, in.Name)
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolText("Feed %s renamed to %q.", feed.ID, feed.DisplayName()), nil, nil
}

func (t *tools) feedArticles(ctx context.Context, _ *mcp.CallToolRequest, in feedArticlesInput) (*mcp.CallToolResult, any, error) {
	if in.Limit < 0 || in.Offset < 0 {
		return toolErrorf("limit and offset must not be negative"), nil, nil
	}
	feed, err := t.engine.ResolveFeed(ctx, in.Feed)
	if err != nil {
		return toolError(err), nil, nil
	}
	articles, err := t.engine.ListArticles(ctx, feed.ID)
	if err != nil {
		return toolError(err), nil, nil
	}

	if in.Offset >= len(articles) {
		articles = nil
	} else {
		articles = articles[in.Offset:]
	}
	if in.Limit > 0 && in.Limit < len(articles) {
		articles = articles[:in.Limit]
	}
	return toolJSON(withoutContent(articles)), nil, nil
}

func (t *tools) articleGet(ctx context.Context, _ *mcp.CallToolRequest, in articleIDInput) (*mcp.CallToolResult, any, error) {
	article, err := t.engine.GetArticle(ctx, in.ArticleID)
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSON(article), nil, nil
}

func (t *tools) feedStats(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	stats, err := t.engine.FeedStats(ctx)
	if err != nil {
		return toolError(err), nil, nil
	}
	if stats == nil {
		stats = []newsie.FeedStats{}
	}
	return toolJSON(stats), nil, nil
}

// withoutContent drops article bodies so listings stay small.
func withoutContent(articles []newsie.Article) []newsie.Article {
	out := make([]newsie.Article, len(articles))
	for i, a := range articles {
		a.Content = ""
		out[i] = a
	}
	return out
}

func toolText(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func toolJSON(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return toolErrorf("marshal result: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func toolErrorf(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

// toolError reports err to the client, tagged with its kind when known.
func toolError(err error) *mcp.CallToolResult {
	if k := newsie.KindOf(err); k != newsie.KindUnknown {
		return toolErrorf("%s: %v", k, err)
	}
	return toolErrorf("%v", err)
}
