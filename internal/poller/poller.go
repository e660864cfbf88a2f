// Package poller implements the Background Poller (C7): a process-wide
// timer that drives the Snapshot Service on an interval, independent of
// any HTTP read.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refresher is the subset of the Dashboard Aggregator the Background
// Poller needs: one unconditional refresh of the default scope.
type Refresher interface {
	RefreshDefaultScope(ctx context.Context) error
}

// Poller drives Refresher.RefreshDefaultScope on a fixed interval. State
// lives on this single instance, created at most once per process by the
// caller (cmd/gateway wires exactly one).
type Poller struct {
	refresher Refresher
	interval  time.Duration
	logger    *zap.Logger

	cancel context.CancelFunc
	once   sync.Once
}

// New builds a Poller. logger may be zap.NewNop() in tests.
func New(refresher Refresher, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{refresher: refresher, interval: interval, logger: logger}
}

// EnsureRunning starts the timer if none exists yet, with one immediate
// run on first start. Calling it any number of times has the same effect
// as calling it once.
func (p *Poller) EnsureRunning(ctx context.Context) {
	p.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		go p.loop(runCtx)
	})
}

// Stop cancels the timer, if running.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) loop(ctx context.Context) {
	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.refresher.RefreshDefaultScope(ctx); err != nil {
		p.logger.Warn("poller: refresh failed", zap.Error(err))
	}
}
