package tmdb

import (
	"context"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

// API is the raw catalog HTTP surface: one method call is one request.
// Only Throttled should hold an API.
type API interface {
	SearchMulti(ctx context.Context, query string) ([]Result, error)
	Details(ctx context.Context, id int64, kind domain.MediaKind, language string) (*Details, error)
	NowPlaying(ctx context.Context) ([]Result, error)
	TrendingWeek(ctx context.Context) ([]Result, error)
	DiscoverByProvider(ctx context.Context, providerID int) ([]Result, error)
	Upcoming(ctx context.Context) ([]Result, error)
	OnTheAir(ctx context.Context) ([]Result, error)
}

// Provider is the catalog port used by the refresh stages. Every request made
// through it passes the shared request queue.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
	Details(ctx context.Context, id int64, kind domain.MediaKind) (*Details, error)
	NowPlaying(ctx context.Context) ([]Result, error)
	Trending(ctx context.Context) ([]Result, error)
	TopOnProvider(ctx context.Context, providerID int) ([]Result, error)
	Upcoming(ctx context.Context) ([]Result, error)
	OnTheAir(ctx context.Context) ([]Result, error)
}
