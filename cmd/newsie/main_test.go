package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matthewjhunter/newsie"
)

const cliRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>CLI Feed</title>
    <item><guid>1</guid><title>One</title><link>https://example.com/1</link></item>
  </channel>
</rss>`

// cliEnv points the CLI at a fresh database through a temp config file.
func cliEnv(t *testing.T) (configFile string, feedURL string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, cliRSS)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	configFile = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  path: %s\nlog:\n  level: error\n", filepath.Join(dir, "newsie.db"))
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configFile, srv.URL + "/rss"
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddListDelete(t *testing.T) {
	conf, feedURL := cliEnv(t)

	out, err := run(t, "-c", conf, "-f", "json", "add", feedURL, "--name", "Mine")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var feed newsie.Feed
	if err := json.Unmarshal([]byte(out), &feed); err != nil {
		t.Fatalf("decode add output %q: %v", out, err)
	}
	if feed.Name != "Mine" || feed.Title != "CLI Feed" {
		t.Errorf("unexpected feed: %+v", feed)
	}

	out, err = run(t, "-c", conf, "-f", "json", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var stats []newsie.FeedStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if len(stats) != 1 || stats[0].Articles != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if _, err := run(t, "-c", conf, "add", feedURL); err == nil || !strings.Contains(err.Error(), "already added") {
		t.Errorf("expected duplicate error, got %v", err)
	}

	out, err = run(t, "-c", conf, "delete", feedURL)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "Deleted Mine") {
		t.Errorf("unexpected delete output: %q", out)
	}

	out, err = run(t, "-c", conf, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No feeds") {
		t.Errorf("expected empty list, got %q", out)
	}
}

func TestRefreshAndArticles(t *testing.T) {
	conf, feedURL := cliEnv(t)
	if _, err := run(t, "-c", conf, "add", feedURL); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := run(t, "-c", conf, "-f", "text", "refresh")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !strings.Contains(out, "feeds_updated=1") || !strings.Contains(out, "new_articles=0") {
		t.Errorf("unexpected refresh summary: %q", out)
	}

	out, err = run(t, "-c", conf, "-f", "text", "articles", feedURL)
	if err != nil {
		t.Fatalf("articles: %v", err)
	}
	if strings.Count(out, "\n") != 1 || !strings.Contains(out, "title=One") {
		t.Errorf("unexpected articles output: %q", out)
	}
}

func TestExportOPML(t *testing.T) {
	conf, feedURL := cliEnv(t)
	if _, err := run(t, "-c", conf, "add", feedURL); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := run(t, "-c", conf, "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, feedURL) || !strings.Contains(out, "<opml") {
		t.Errorf("unexpected OPML: %q", out)
	}
}

func TestAddRejectsInvalidURL(t *testing.T) {
	conf, _ := cliEnv(t)
	if _, err := run(t, "-c", conf, "add", "not a url"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestUnknownFormat(t *testing.T) {
	conf, _ := cliEnv(t)
	if _, err := run(t, "-c", conf, "-f", "xml", "list"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if _, err := run(t, "-c", path, "init-config"); err != nil {
		t.Fatalf("init-config: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "[database]") {
		t.Errorf("expected TOML config, got %q", data)
	}
	if _, err := run(t, "-c", path, "init-config"); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestDaemonRejectsZeroInterval(t *testing.T) {
	conf, _ := cliEnv(t)
	f, err := os.OpenFile(conf, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	fmt.Fprint(f, "sync:\n  interval: 0s\n")
	f.Close()

	if _, err := run(t, "-c", conf, "daemon"); err == nil || !strings.Contains(err.Error(), "sync.interval") {
		t.Fatalf("expected sync.interval error, got %v", err)
	}
}
