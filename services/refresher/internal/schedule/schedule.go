// Package schedule triggers the refresh jobs on a fixed tick.
package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/jobs"
)

type Runner interface {
	Run(ctx context.Context, category domain.RefreshCategory) jobs.Result
}

// Loop launches every category on each tick. Jobs are staleness-gated, so a
// tick on which nothing is due costs one store read per category. A category
// still running in this process is not launched again.
type Loop struct {
	Runner     Runner
	Tick       time.Duration
	Categories []domain.RefreshCategory
	Log        *zap.Logger

	mu      sync.Mutex
	running map[domain.RefreshCategory]bool
	wg      sync.WaitGroup
}

func New(r Runner, tick time.Duration, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		Runner:     r,
		Tick:       tick,
		Categories: domain.Categories,
		Log:        log,
		running:    make(map[domain.RefreshCategory]bool),
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight jobs. The first
// tick fires immediately.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Tick)
	defer ticker.Stop()

	l.Log.Info("refresh loop started", zap.Duration("tick", l.Tick))
	l.TriggerAll(ctx)
	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			l.Log.Info("refresh loop stopped")
			return nil
		case <-ticker.C:
			l.TriggerAll(ctx)
		}
	}
}

func (l *Loop) TriggerAll(ctx context.Context) {
	for _, c := range l.Categories {
		l.Trigger(ctx, c)
	}
}

// Trigger launches category in the background and reports whether it did.
func (l *Loop) Trigger(ctx context.Context, category domain.RefreshCategory) bool {
	l.mu.Lock()
	if l.running[category] {
		l.mu.Unlock()
		l.Log.Debug("refresh still running, tick ignored", zap.String("category", string(category)))
		return false
	}
	l.running[category] = true
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.running, category)
			l.mu.Unlock()
		}()
		l.Runner.Run(ctx, category)
	}()
	return true
}

// Wait blocks until every launched job has returned.
func (l *Loop) Wait() { l.wg.Wait() }
