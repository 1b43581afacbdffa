package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/resolver"
	"github.com/example/media-platform/services/refresher/internal/tmdb"
)

// List types of the trending collection.
const (
	ListNowPlaying = "now_playing"
	ListTrending   = "trending"
	ListProvider   = "provider"
)

// TopPerProvider caps each streaming provider list.
const TopPerProvider = 10

// TrendingProviders are the streaming services with a top list.
var TrendingProviders = []int{tmdb.ProviderNetflix, tmdb.ProviderPrime, tmdb.ProviderMax, tmdb.ProviderDisney}

type trendingList struct {
	listType   string
	providerID int
	results    []tmdb.Result
	limit      int
}

func (r *Runner) RunFastTrending(ctx context.Context) Result {
	return r.run(ctx, domain.FastTrending, r.produceTrending)
}

func (r *Runner) produceTrending(ctx context.Context, log *zap.Logger, started time.Time) (string, error) {
	lists := []*trendingList{
		{listType: ListNowPlaying},
		{listType: ListTrending},
	}
	for _, id := range TrendingProviders {
		lists = append(lists, &trendingList{listType: ListProvider, providerID: id, limit: TopPerProvider})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range lists {
		g.Go(func() error {
			var err error
			switch l.listType {
			case ListNowPlaying:
				l.results, err = r.Catalog.NowPlaying(gctx)
			case ListTrending:
				l.results, err = r.Catalog.Trending(gctx)
			default:
				l.results, err = r.Catalog.TopOnProvider(gctx, l.providerID)
			}
			if err != nil {
				return fmt.Errorf("fetch %s list %d: %w", l.listType, l.providerID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	entries := trendingEntries(lists...)
	log.Debug("trending lists fetched", zap.Int("lists", len(lists)), zap.Int("entries", len(entries)))
	if err := r.Publisher.Publish(ctx, domain.FastTrending, entries, started, r.now()); err != nil {
		return "", err
	}
	return fmt.Sprintf("published %d entries from %d lists", len(entries), len(lists)), nil
}

// trendingEntries flattens the lists into entries. Items without a release
// date are skipped, titles without a year get one appended, and each
// listType/providerID/id appears once. Rank is the position in its list.
func trendingEntries(lists ...*trendingList) []domain.CacheEntry {
	var out []domain.CacheEntry
	seen := map[string]struct{}{}
	for _, l := range lists {
		rank := 0
		for _, res := range l.results {
			if l.limit > 0 && rank >= l.limit {
				break
			}
			if res.Date() == "" || !res.Kind().Valid() {
				continue
			}
			key := fmt.Sprintf("%s/%d/%d", l.listType, l.providerID, res.ID)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			rank++

			title := res.DisplayTitle()
			if resolver.YearFromTitle(title) == 0 && res.Year() > 0 {
				title = fmt.Sprintf("%s (%d)", title, res.Year())
			}
			out = append(out, domain.CacheEntry{
				CanonicalID: res.ID,
				Kind:        res.Kind(),
				Title:       title,
				PosterURL:   tmdb.PosterURL(res.PosterPath),
				Synopsis:    res.Overview,
				Rank:        rank,
				ListType:    l.listType,
				ProviderID:  l.providerID,
				ReleaseDate: res.Date(),
			})
		}
	}
	return out
}
