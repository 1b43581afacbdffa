package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/suggest"
	"github.com/example/media-platform/services/refresher/internal/tmdb"
)

// List types of the releases collection.
const (
	ListUpcoming = "upcoming"
	ListOnTheAir = "on_the_air"
)

func (r *Runner) RunRelevantReleases(ctx context.Context) Result {
	return r.run(ctx, domain.RelevantReleases, r.produceReleases)
}

type releaseOffer struct {
	res      tmdb.Result
	listType string
}

func (r *Runner) produceReleases(ctx context.Context, log *zap.Logger, started time.Time) (string, error) {
	profile, err := r.Store.LoadTasteProfile(ctx)
	if err != nil {
		return "", fmt.Errorf("load taste profile: %w", err)
	}
	upcoming, err := r.Catalog.Upcoming(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch upcoming: %w", err)
	}
	onAir, err := r.Catalog.OnTheAir(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch on the air: %w", err)
	}

	today := domain.DayKey(started, r.loc())
	seen := profile.IDs()
	offers := map[int64]releaseOffer{}
	var candidates []suggest.ReleaseCandidate
	add := func(list string, results []tmdb.Result) {
		for _, res := range results {
			if res.Date() < today || !res.Kind().Valid() {
				continue
			}
			if _, ok := seen[res.ID]; ok {
				continue
			}
			if _, ok := offers[res.ID]; ok {
				continue
			}
			offers[res.ID] = releaseOffer{res: res, listType: list}
			candidates = append(candidates, suggest.ReleaseCandidate{
				ID:          res.ID,
				Kind:        res.Kind(),
				Title:       res.DisplayTitle(),
				ReleaseDate: res.Date(),
				Overview:    res.Overview,
			})
		}
	}
	add(ListUpcoming, upcoming)
	add(ListOnTheAir, onAir)

	picks, err := r.Suggest.RequestRelevantReleases(ctx, profile, candidates)
	if err != nil {
		return "", err
	}

	entries := make([]domain.CacheEntry, 0, len(picks))
	for _, p := range picks {
		o, ok := offers[p.ID]
		if !ok {
			continue
		}
		entries = append(entries, domain.CacheEntry{
			CanonicalID: o.res.ID,
			Kind:        o.res.Kind(),
			Title:       o.res.DisplayTitle(),
			PosterURL:   tmdb.PosterURL(o.res.PosterPath),
			Synopsis:    o.res.Overview,
			Rationale:   p.Reason,
			Rank:        len(entries) + 1,
			ListType:    o.listType,
			ReleaseDate: o.res.Date(),
		})
	}
	log.Debug("releases picked", zap.Int("offered", len(candidates)), zap.Int("picked", len(entries)))

	if err := r.Publisher.Publish(ctx, domain.RelevantReleases, entries, started, r.now()); err != nil {
		return "", err
	}
	return fmt.Sprintf("published %d of %d upcoming releases", len(entries), len(candidates)), nil
}
