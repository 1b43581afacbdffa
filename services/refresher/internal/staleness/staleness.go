// Package staleness decides whether a category is due for a refresh.
package staleness

import (
	"context"
	"fmt"
	"time"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

// Intervals of the elapsed-time policies.
const (
	TrendingInterval = 24 * time.Hour
	ReleasesInterval = 7 * 24 * time.Hour
)

// Reader is the store state the controller consults.
type Reader interface {
	GetStaleness(ctx context.Context, category domain.RefreshCategory) (domain.StalenessRecord, bool, error)
	ChallengeExists(ctx context.Context, weekID string) (bool, error)
}

// Controller evaluates staleness against the store in a fixed reference zone.
type Controller struct {
	Store Reader
	Loc   *time.Location
}

func New(store Reader, loc *time.Location) *Controller {
	if loc == nil {
		loc = time.UTC
	}
	return &Controller{Store: store, Loc: loc}
}

// IsRefreshDue reports whether category should refresh at now. A missing
// record always means due. Store failures are returned, never treated as due.
func (c *Controller) IsRefreshDue(ctx context.Context, category domain.RefreshCategory, now time.Time) (bool, error) {
	if category == domain.WeeklyChallenge {
		exists, err := c.Store.ChallengeExists(ctx, domain.WeekID(now, c.Loc))
		if err != nil {
			return false, fmt.Errorf("staleness %s: %w", category, err)
		}
		return !exists, nil
	}

	rec, ok, err := c.Store.GetStaleness(ctx, category)
	if err != nil {
		return false, fmt.Errorf("staleness %s: %w", category, err)
	}
	if !ok {
		return true, nil
	}

	switch category {
	case domain.FastTrending:
		return DueAfter(rec.LastUpdate, now, TrendingInterval), nil
	case domain.CuratedWeekly:
		return DueSinceWeekStart(rec.LastUpdate, now, c.Loc), nil
	case domain.RelevantReleases:
		return DueAfter(rec.LastUpdate, now, ReleasesInterval), nil
	}
	return false, fmt.Errorf("staleness: unknown category %q", category)
}

// Window names the period a refresh belongs to: the calendar day for
// trending, the ISO week for weekly categories. Two runs in the same window
// compete for the same lock.
func (c *Controller) Window(category domain.RefreshCategory, now time.Time) string {
	if category == domain.FastTrending {
		return domain.DayKey(now, c.Loc)
	}
	return domain.WeekID(now, c.Loc)
}

// DueAfter is true once at least interval has elapsed since last.
func DueAfter(last, now time.Time, interval time.Duration) bool {
	return now.Sub(last) >= interval
}

// DueSinceWeekStart is true when last precedes Monday 00:00 of now's week in loc.
func DueSinceWeekStart(last, now time.Time, loc *time.Location) bool {
	return last.Before(domain.WeekStart(now, loc))
}
