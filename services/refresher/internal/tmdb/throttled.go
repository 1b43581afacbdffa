package tmdb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/throttle"
)

// FallbackLanguage is used when an item has no entry in the default language.
const FallbackLanguage = "en-US"

// Throttled implements Provider by routing every API call through the shared
// request queue.
type Throttled struct {
	api API
	q   *throttle.Queue
	log *zap.Logger
}

func NewThrottled(api API, q *throttle.Queue, log *zap.Logger) *Throttled {
	if log == nil {
		log = zap.NewNop()
	}
	return &Throttled{api: api, q: q, log: log}
}

var _ Provider = (*Throttled)(nil)

func (t *Throttled) Search(ctx context.Context, query string) ([]Result, error) {
	return throttle.Do(ctx, t.q, func(ctx context.Context) ([]Result, error) {
		return t.api.SearchMulti(ctx, query)
	})
}

// Details fetches metadata in the default language, falling back once to
// FallbackLanguage on 404. Each attempt is a separate queued request.
func (t *Throttled) Details(ctx context.Context, id int64, kind domain.MediaKind) (*Details, error) {
	d, err := throttle.Do(ctx, t.q, func(ctx context.Context) (*Details, error) {
		return t.api.Details(ctx, id, kind, "")
	})
	if err == nil || !IsNotFound(err) {
		return d, err
	}
	t.log.Debug("tmdb details not found, retrying in fallback language",
		zap.Int64("id", id), zap.String("kind", string(kind)))
	d, err = throttle.Do(ctx, t.q, func(ctx context.Context) (*Details, error) {
		return t.api.Details(ctx, id, kind, FallbackLanguage)
	})
	if err != nil {
		return nil, fmt.Errorf("details %s/%d: %w", kind, id, err)
	}
	return d, nil
}

func (t *Throttled) NowPlaying(ctx context.Context) ([]Result, error) {
	return throttle.Do(ctx, t.q, t.api.NowPlaying)
}

func (t *Throttled) Trending(ctx context.Context) ([]Result, error) {
	return throttle.Do(ctx, t.q, t.api.TrendingWeek)
}

func (t *Throttled) TopOnProvider(ctx context.Context, providerID int) ([]Result, error) {
	return throttle.Do(ctx, t.q, func(ctx context.Context) ([]Result, error) {
		return t.api.DiscoverByProvider(ctx, providerID)
	})
}

func (t *Throttled) Upcoming(ctx context.Context) ([]Result, error) {
	return throttle.Do(ctx, t.q, t.api.Upcoming)
}

func (t *Throttled) OnTheAir(ctx context.Context) ([]Result, error) {
	return throttle.Do(ctx, t.q, t.api.OnTheAir)
}
