package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Fields tagged omitempty are optional.

type emptyInput struct{}

type feedAddInput struct {
	URL  string `json:"url"            jsonschema:"The RSS/Atom feed URL (http or https)"`
	Name string `json:"name,omitempty" jsonschema:"Optional display name. If omitted the feed's own title is shown."`
}

type feedRefInput struct {
	Feed string `json:"feed" jsonschema:"The feed ID or its URL"`
}

type feedRenameInput struct {
	Feed string `json:"feed" jsonschema:"The feed ID or its URL"`
	Name string `json:"name" jsonschema:"The new display name. An empty name restores the feed title."`
}

type feedArticlesInput struct {
	Feed   string `json:"feed"             jsonschema:"The feed ID or its URL"`
	Limit  int    `json:"limit,omitempty"  jsonschema:"Maximum number of articles to return, newest last (default all)"`
	Offset int    `json:"offset,omitempty" jsonschema:"Number of articles to skip for pagination (default 0)"`
}

type articleIDInput struct {
	ArticleID string `json:"article_id" jsonschema:"The article ID"`
}
