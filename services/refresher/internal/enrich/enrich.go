// Package enrich resolves raw suggestions to catalog items and attaches the
// catalog's metadata.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/metrics"
	"github.com/example/media-platform/services/refresher/internal/resolver"
	"github.com/example/media-platform/services/refresher/internal/tmdb"
)

// DefaultConcurrency bounds in-flight items. The request queue still runs one
// catalog call at a time.
const DefaultConcurrency = 4

type Resolver interface {
	Resolve(ctx context.Context, title string, year int, kind domain.MediaKind) (resolver.Match, error)
}

type Detailer interface {
	Details(ctx context.Context, id int64, kind domain.MediaKind) (*tmdb.Details, error)
}

// Group is a named, ordered set of resolved items.
type Group struct {
	Name  string
	Items []domain.ResolvedCandidate
}

type Stage struct {
	Resolver    Resolver
	Catalog     Detailer
	Log         *zap.Logger
	Concurrency int
}

func New(r Resolver, catalog Detailer, log *zap.Logger) *Stage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stage{Resolver: r, Catalog: catalog, Log: log, Concurrency: DefaultConcurrency}
}

// ResolveAndEnrich resolves every suggestion and fetches its details.
//
// Items without a catalog match are dropped with a warning. Any other error
// aborts the whole stage. Groups keep the order in which they first appear
// and empty groups are dropped. Within one call a canonical id is kept only
// at its first occurrence, and ids in exclude are dropped.
func (s *Stage) ResolveAndEnrich(ctx context.Context, category domain.RefreshCategory, raws []domain.RawSuggestion, exclude map[int64]struct{}) ([]Group, error) {
	resolved := make([]*domain.ResolvedCandidate, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	conc := s.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}
	g.SetLimit(conc)
	for i, raw := range raws {
		g.Go(func() error {
			rc, err := s.enrichOne(gctx, raw)
			if errors.Is(err, resolver.ErrNotFound) || tmdb.IsNotFound(err) {
				s.Log.Warn("dropping unresolved suggestion",
					zap.String("category", string(category)),
					zap.String("title", raw.Title),
					zap.Int("year", raw.Year),
					zap.Error(err))
				metrics.ResolutionMissesTotal.WithLabelValues(string(category)).Inc()
				return nil
			}
			if err != nil {
				return fmt.Errorf("enrich %q: %w", raw.Title, err)
			}
			resolved[i] = &rc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var groups []Group
	index := map[string]int{}
	seen := map[int64]struct{}{}
	for _, rc := range resolved {
		if rc == nil {
			continue
		}
		if _, ok := exclude[rc.CanonicalID]; ok {
			s.Log.Debug("dropping excluded item", zap.Int64("id", rc.CanonicalID), zap.String("title", rc.DisplayTitle))
			continue
		}
		if _, dup := seen[rc.CanonicalID]; dup {
			s.Log.Debug("dropping duplicate item", zap.Int64("id", rc.CanonicalID), zap.String("title", rc.DisplayTitle))
			continue
		}
		seen[rc.CanonicalID] = struct{}{}

		gi, ok := index[rc.Group]
		if !ok {
			gi = len(groups)
			index[rc.Group] = gi
			groups = append(groups, Group{Name: rc.Group})
		}
		groups[gi].Items = append(groups[gi].Items, *rc)
	}
	return groups, nil
}

func (s *Stage) enrichOne(ctx context.Context, raw domain.RawSuggestion) (domain.ResolvedCandidate, error) {
	m, err := s.Resolver.Resolve(ctx, raw.Title, raw.Year, raw.Kind)
	if err != nil {
		return domain.ResolvedCandidate{}, err
	}
	d, err := s.Catalog.Details(ctx, m.ID, m.Kind)
	if err != nil {
		return domain.ResolvedCandidate{}, err
	}

	rc := domain.ResolvedCandidate{
		RawSuggestion: raw,
		CanonicalID:   m.ID,
		MatchedKind:   m.Kind,
		DisplayTitle:  firstNonEmpty(d.DisplayTitle(), m.Title, raw.Title),
		PosterURL:     tmdb.PosterURL(firstNonEmpty(d.PosterPath, m.PosterPath)),
		Genre:         d.PrimaryGenre(),
		Synopsis:      firstNonEmpty(d.Overview, m.Overview),
		ReleaseDate:   firstNonEmpty(d.Date(), m.ReleaseDate),
	}
	return rc, nil
}

// Flatten returns the items of groups in order.
func Flatten(groups []Group) []domain.ResolvedCandidate {
	var out []domain.ResolvedCandidate
	for _, g := range groups {
		out = append(out, g.Items...)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
