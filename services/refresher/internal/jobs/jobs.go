// Package jobs runs the refresh of each category: lock, staleness gate,
// produce, publish.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/media-platform/internal/platform/logging"
	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/enrich"
	"github.com/example/media-platform/services/refresher/internal/lock"
	"github.com/example/media-platform/services/refresher/internal/metrics"
	"github.com/example/media-platform/services/refresher/internal/publisher"
	"github.com/example/media-platform/services/refresher/internal/store"
	"github.com/example/media-platform/services/refresher/internal/suggest"
	"github.com/example/media-platform/services/refresher/internal/tmdb"
)

// Status is the outcome of one run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result describes a finished run.
type Result struct {
	Category domain.RefreshCategory `json:"category"`
	RunID    string                 `json:"run_id"`
	Status   Status                 `json:"status"`
	Summary  string                 `json:"summary"`
	Err      error                  `json:"-"`
}

// Error is the run's failure message, empty when the run did not fail.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// skip ends a run as skipped with reason as its summary.
type skip struct{ reason string }

func (s skip) Error() string { return s.reason }

type Catalog interface {
	NowPlaying(ctx context.Context) ([]tmdb.Result, error)
	Trending(ctx context.Context) ([]tmdb.Result, error)
	TopOnProvider(ctx context.Context, providerID int) ([]tmdb.Result, error)
	Upcoming(ctx context.Context) ([]tmdb.Result, error)
	OnTheAir(ctx context.Context) ([]tmdb.Result, error)
}

type Suggester interface {
	RequestSuggestions(ctx context.Context, category domain.RefreshCategory, profile domain.TasteProfile, exclude []string) ([]domain.RawSuggestion, error)
	RequestChallenge(ctx context.Context, profile domain.TasteProfile, exclude []string, now time.Time) (suggest.ChallengePlan, error)
	RequestRelevantReleases(ctx context.Context, profile domain.TasteProfile, releases []suggest.ReleaseCandidate) ([]suggest.ReleasePick, error)
}

type Enricher interface {
	ResolveAndEnrich(ctx context.Context, category domain.RefreshCategory, raws []domain.RawSuggestion, exclude map[int64]struct{}) ([]enrich.Group, error)
}

type Gate interface {
	IsRefreshDue(ctx context.Context, category domain.RefreshCategory, now time.Time) (bool, error)
	Window(category domain.RefreshCategory, now time.Time) string
}

type Publisher interface {
	Publish(ctx context.Context, category domain.RefreshCategory, entries []domain.CacheEntry, runStartedAt, publishedAt time.Time) error
}

type Store interface {
	LoadTasteProfile(ctx context.Context) (domain.TasteProfile, error)
	CreateChallengeIfAbsent(ctx context.Context, c domain.Challenge) (bool, error)
}

// DefaultLockTTL bounds how long a crashed run can block its window.
const DefaultLockTTL = 30 * time.Minute

type Runner struct {
	Catalog   Catalog
	Suggest   Suggester
	Enrich    Enricher
	Staleness Gate
	Publisher Publisher
	Store     Store
	Locker    lock.Locker
	LockTTL   time.Duration
	Loc       *time.Location
	Log       *zap.Logger
	Now       func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) loc() *time.Location {
	if r.Loc != nil {
		return r.Loc
	}
	return time.UTC
}

func (r *Runner) logger() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// Run refreshes one category.
func (r *Runner) Run(ctx context.Context, category domain.RefreshCategory) Result {
	switch category {
	case domain.FastTrending:
		return r.RunFastTrending(ctx)
	case domain.CuratedWeekly:
		return r.RunCuratedWeekly(ctx)
	case domain.WeeklyChallenge:
		return r.RunWeeklyChallenge(ctx)
	case domain.RelevantReleases:
		return r.RunRelevantReleases(ctx)
	}
	return Result{Category: category, Status: StatusFailed, Err: fmt.Errorf("unknown category %q", category)}
}

// DispatchCategory picks the category refreshed on now's weekday in loc:
// Monday the challenge, Tuesday the curated list, Wednesday the releases and
// trending on every other day.
func DispatchCategory(now time.Time, loc *time.Location) domain.RefreshCategory {
	switch now.In(loc).Weekday() {
	case time.Monday:
		return domain.WeeklyChallenge
	case time.Tuesday:
		return domain.CuratedWeekly
	case time.Wednesday:
		return domain.RelevantReleases
	}
	return domain.FastTrending
}

// Dispatch runs the category scheduled for now's weekday.
func (r *Runner) Dispatch(ctx context.Context, now time.Time) Result {
	return r.Run(ctx, DispatchCategory(now, r.loc()))
}

type produceFunc func(ctx context.Context, log *zap.Logger, started time.Time) (string, error)

func (r *Runner) run(ctx context.Context, category domain.RefreshCategory, produce produceFunc) (res Result) {
	started := r.now()
	res = Result{Category: category, RunID: uuid.NewString()}
	log := logging.ForRun(r.logger(), string(category), res.RunID)

	defer func() {
		metrics.RecordRun(string(category), string(res.Status), time.Since(started))
		fields := []zap.Field{zap.String("status", string(res.Status)), zap.String("summary", res.Summary), zap.Duration("took", time.Since(started))}
		if res.Err != nil {
			log.Error("refresh failed", append(fields, zap.Error(res.Err))...)
			return
		}
		log.Info("refresh finished", fields...)
	}()

	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	key := string(category) + ":" + r.Staleness.Window(category, started)
	lease, ok, err := r.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("acquire lock %s: %w", key, err)
		return res
	}
	if !ok {
		res.Status, res.Summary = StatusSkipped, "refresh already running for "+key
		return res
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release lock failed", zap.String("key", key), zap.Error(err))
		}
	}()

	due, err := r.Staleness.IsRefreshDue(ctx, category, started)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	if !due {
		res.Status, res.Summary = StatusSkipped, "not due"
		return res
	}

	summary, err := produce(ctx, log, started)
	var sk skip
	switch {
	case errors.As(err, &sk):
		res.Status, res.Summary = StatusSkipped, sk.reason
	case errors.Is(err, store.ErrStalePublish):
		res.Status, res.Summary = StatusSkipped, "a newer run already published"
	case errors.Is(err, publisher.ErrEmptyKept):
		res.Status, res.Summary = StatusSkipped, "empty result, kept last good set"
	case err != nil:
		res.Status, res.Err = StatusFailed, err
	default:
		res.Status, res.Summary = StatusOK, summary
	}
	return res
}

func entryFrom(rc domain.ResolvedCandidate, rank int) domain.CacheEntry {
	return domain.CacheEntry{
		CanonicalID: rc.CanonicalID,
		Kind:        rc.MatchedKind,
		Title:       rc.DisplayTitle,
		PosterURL:   rc.PosterURL,
		Genre:       rc.Genre,
		Synopsis:    rc.Synopsis,
		Rationale:   rc.Rationale,
		Group:       rc.Group,
		Rank:        rank,
		ReleaseDate: rc.ReleaseDate,
	}
}
