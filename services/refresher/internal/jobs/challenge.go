package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/enrich"
)

// ErrNoChallengeItems fails a challenge run in which nothing resolved. No
// challenge is created, so the next trigger tries again.
var ErrNoChallengeItems = errors.New("jobs: no challenge item resolved")

func (r *Runner) RunWeeklyChallenge(ctx context.Context) Result {
	return r.run(ctx, domain.WeeklyChallenge, r.produceChallenge)
}

func (r *Runner) produceChallenge(ctx context.Context, log *zap.Logger, started time.Time) (string, error) {
	weekID := domain.WeekID(started, r.loc())

	profile, err := r.Store.LoadTasteProfile(ctx)
	if err != nil {
		return "", fmt.Errorf("load taste profile: %w", err)
	}
	plan, err := r.Suggest.RequestChallenge(ctx, profile, profile.Titles(), started)
	if err != nil {
		return "", err
	}
	groups, err := r.Enrich.ResolveAndEnrich(ctx, domain.WeeklyChallenge, plan.Items, profile.IDs())
	if err != nil {
		return "", err
	}

	resolved := enrich.Flatten(groups)
	if len(resolved) == 0 {
		return "", fmt.Errorf("%w: %d suggested for %q", ErrNoChallengeItems, len(plan.Items), plan.Theme)
	}
	items := make([]domain.ChallengeItem, 0, len(resolved))
	for _, rc := range resolved {
		items = append(items, domain.ChallengeItem{
			CanonicalID: rc.CanonicalID,
			Kind:        rc.MatchedKind,
			Title:       rc.DisplayTitle,
			PosterURL:   rc.PosterURL,
		})
	}

	c, err := domain.NewChallenge(weekID, plan.Theme, plan.Rationale, items, r.now())
	if err != nil {
		return "", err
	}
	created, err := r.Store.CreateChallengeIfAbsent(ctx, c)
	if err != nil {
		return "", fmt.Errorf("create challenge %s: %w", weekID, err)
	}
	if !created {
		return "", skip{reason: "challenge for " + weekID + " already exists"}
	}

	log.Debug("challenge created",
		zap.String("week_id", weekID),
		zap.Int("suggested", len(plan.Items)),
		zap.Int("resolved", len(items)))
	return fmt.Sprintf("created %s challenge %q with %d of %d items", weekID, plan.Theme, len(items), len(plan.Items)), nil
}
