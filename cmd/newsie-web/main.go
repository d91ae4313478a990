package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewjhunter/newsie"
	"github.com/matthewjhunter/newsie/internal/config"
	"github.com/matthewjhunter/newsie/internal/feeds"
	"github.com/matthewjhunter/newsie/internal/metrics"
	"github.com/matthewjhunter/newsie/internal/storage"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	addr := flag.String("addr", "", "listen address (overrides web.addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "newsie-web: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "newsie-web: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "newsie-web: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	engine := newsie.New(store, feeds.NewFetcher(feeds.Options{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      cfg.Fetcher.Timeout,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
	}), newsie.EngineConfig{
		Logger:  logger,
		Metrics: metrics.New(prometheus.DefaultRegisterer),
		Workers: cfg.Sync.Workers,
	})

	if cfg.Web.JWTSecret == "" {
		logger.Warn("web.jwt_secret not set, /api/ is unauthenticated")
	}
	mux := newRouter(engine, routerOptions{
		Logger:    logger,
		JWTSecret: []byte(cfg.Web.JWTSecret),
	})

	srv := &http.Server{
		Addr:         cfg.Web.Addr,
		Handler:      logging(logger, recovery(logger, mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // refresh-all waits on remote feeds
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("listening", "addr", cfg.Web.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("stopped")
}
