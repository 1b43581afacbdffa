// Package publisher commits a category's result set and its staleness record
// together, then announces the change.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/media-platform/internal/platform/events"
	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/metrics"
)

// Empty-result policies.
const (
	EmptyPublish      = "publish"
	EmptyKeepLastGood = "keep_last_good"
)

// ErrEmptyKept reports an empty result that was not published under the
// keep_last_good policy.
var ErrEmptyKept = errors.New("publisher: empty result kept last good set")

// Writer is the store operation the publisher needs.
type Writer interface {
	ReplaceCategory(ctx context.Context, entries []domain.CacheEntry, rec domain.StalenessRecord) error
}

// Notifier announces committed publishes.
type Notifier interface {
	Publish(subject, eventName string, props map[string]any)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(subject, eventName string, props map[string]any)

func (f NotifierFunc) Publish(subject, eventName string, props map[string]any) {
	f(subject, eventName, props)
}

// Notifiers fans one notification out to every member. Nil members are skipped.
type Notifiers []Notifier

func (ns Notifiers) Publish(subject, eventName string, props map[string]any) {
	for _, n := range ns {
		if n != nil {
			n.Publish(subject, eventName, props)
		}
	}
}

type Publisher struct {
	Store       Writer
	Events      Notifier
	Log         *zap.Logger
	EmptyPolicy string
}

func New(store Writer, ev Notifier, log *zap.Logger, emptyPolicy string) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if emptyPolicy == "" {
		emptyPolicy = EmptyPublish
	}
	return &Publisher{Store: store, Events: ev, Log: log, EmptyPolicy: emptyPolicy}
}

// Publish replaces every entry of category and stamps its staleness record in
// one store transaction. publishedAt becomes the record's LastUpdate and must
// come from the same clock the staleness gate reads. runStartedAt orders
// competing publishes: an older run loses with store.ErrStalePublish.
// entries is not modified.
func (p *Publisher) Publish(ctx context.Context, category domain.RefreshCategory, entries []domain.CacheEntry, runStartedAt, publishedAt time.Time) error {
	if len(entries) == 0 && p.EmptyPolicy == EmptyKeepLastGood {
		p.Log.Warn("empty result, keeping last good set", zap.String("category", string(category)))
		return ErrEmptyKept
	}

	stamped := make([]domain.CacheEntry, len(entries))
	for i, e := range entries {
		e.Category = category
		stamped[i] = e
	}
	now := publishedAt.UTC()
	rec := domain.StalenessRecord{Category: category, LastUpdate: now, RunStartedAt: runStartedAt.UTC()}
	if err := p.Store.ReplaceCategory(ctx, stamped, rec); err != nil {
		return fmt.Errorf("publish %s: %w", category, err)
	}

	metrics.PublishedEntries.WithLabelValues(string(category)).Set(float64(len(entries)))
	p.Log.Info("published collection",
		zap.String("category", string(category)),
		zap.Int("entries", len(stamped)))

	if p.Events != nil {
		p.Events.Publish(events.SubjectRefreshPublished, "refresh_published", map[string]any{
			"category":     string(category),
			"count":        len(stamped),
			"published_at": now.Format(time.RFC3339),
		})
	}
	return nil
}
