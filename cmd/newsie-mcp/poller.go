package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/matthewjhunter/newsie"
)

// poller runs a background refresh loop and serializes manual refreshes
// with it.
type poller struct {
	engine   *newsie.Engine
	log      *slog.Logger
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
}

func newPoller(engine *newsie.Engine, logger *slog.Logger, interval time.Duration) *poller {
	return &poller{
		engine:   engine,
		log:      logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	p.log.Info("poller started", "interval", p.interval)
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	close(p.done)
	p.log.Info("poller stopped")
}

// poll runs a single refresh of every feed. The feeds_refresh_all tool
// calls it too, so two refreshes never overlap.
func (p *poller) poll(ctx context.Context) (*newsie.RefreshSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.RefreshAll(ctx)
}

func (p *poller) loop(ctx context.Context) {
	if _, err := p.poll(ctx); err != nil {
		p.log.Warn("initial poll finished with errors", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				p.log.Warn("poll finished with errors", "error", err)
			}
		}
	}
}
