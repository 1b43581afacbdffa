package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

func (r *Runner) RunCuratedWeekly(ctx context.Context) Result {
	return r.run(ctx, domain.CuratedWeekly, r.produceCurated)
}

func (r *Runner) produceCurated(ctx context.Context, log *zap.Logger, started time.Time) (string, error) {
	profile, err := r.Store.LoadTasteProfile(ctx)
	if err != nil {
		return "", fmt.Errorf("load taste profile: %w", err)
	}
	raws, err := r.Suggest.RequestSuggestions(ctx, domain.CuratedWeekly, profile, profile.Titles())
	if err != nil {
		return "", err
	}
	groups, err := r.Enrich.ResolveAndEnrich(ctx, domain.CuratedWeekly, raws, profile.IDs())
	if err != nil {
		return "", err
	}

	var entries []domain.CacheEntry
	for _, g := range groups {
		for _, it := range g.Items {
			entries = append(entries, entryFrom(it, len(entries)+1))
		}
	}
	log.Debug("curated list resolved",
		zap.Int("suggested", len(raws)),
		zap.Int("resolved", len(entries)),
		zap.Int("groups", len(groups)))

	if err := r.Publisher.Publish(ctx, domain.CuratedWeekly, entries, started, r.now()); err != nil {
		return "", err
	}
	return fmt.Sprintf("published %d of %d suggestions in %d groups", len(entries), len(raws), len(groups)), nil
}
