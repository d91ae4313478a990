// newsie-mcp is a standalone MCP server for the newsie feed store. It opens
// the configured SQLite database and serves feed tools over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matthewjhunter/newsie"
	"github.com/matthewjhunter/newsie/internal/config"
	"github.com/matthewjhunter/newsie/internal/feeds"
	"github.com/matthewjhunter/newsie/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	dbPath := flag.String("db", "", "path to newsie database (overrides database.path)")
	poll := flag.Duration("poll", 0, "refresh all feeds in the background at this interval (0 disables)")
	flag.Parse()

	if err := run(*configPath, *dbPath, *poll); err != nil {
		fmt.Fprintf(os.Stderr, "newsie-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dbPath string, poll time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	// stdout carries the protocol; logs go to stderr.
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	engine := newsie.New(store, feeds.NewFetcher(feeds.Options{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      cfg.Fetcher.Timeout,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
	}), newsie.EngineConfig{
		Logger:  logger,
		Workers: cfg.Sync.Workers,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPoller(engine, logger, poll)
	if poll > 0 {
		p.start(ctx)
		defer p.stop()
	}

	server := newServer(engine, p)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
