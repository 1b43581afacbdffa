// Package store persists published collections, staleness records, weekly
// challenges and the watched-items history.
package store

import (
	"context"
	"errors"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

var (
	// ErrStalePublish rejects a publish whose run started before the run that
	// produced the current record.
	ErrStalePublish = errors.New("store: publish is older than the current record")
	ErrNoChallenge  = errors.New("store: challenge not found")
)

// WatchedItem is one rated entry of the user's history.
type WatchedItem struct {
	domain.CatalogReference
	Rating domain.Rating
}

// Store is the document store behind every refresh stage.
type Store interface {
	GetStaleness(ctx context.Context, category domain.RefreshCategory) (domain.StalenessRecord, bool, error)
	ChallengeExists(ctx context.Context, weekID string) (bool, error)

	// ReplaceCategory swaps the whole entry set of rec.Category and writes rec
	// in one transaction. It returns ErrStalePublish, changing nothing, when
	// rec.RunStartedAt is before the stored record's.
	ReplaceCategory(ctx context.Context, entries []domain.CacheEntry, rec domain.StalenessRecord) error
	GetCollection(ctx context.Context, category domain.RefreshCategory) (domain.Collection, error)

	// CreateChallengeIfAbsent stores c unless its week already has one.
	CreateChallengeIfAbsent(ctx context.Context, c domain.Challenge) (created bool, err error)
	GetChallenge(ctx context.Context, weekID string) (domain.Challenge, error)
	UpdateChallenge(ctx context.Context, weekID string, mutate func(*domain.Challenge) error) (domain.Challenge, error)

	LoadTasteProfile(ctx context.Context) (domain.TasteProfile, error)
	Ping(ctx context.Context) error
}

// checkMonotonic enforces the publish ordering for an existing record.
func checkMonotonic(cur domain.StalenessRecord, next domain.StalenessRecord) error {
	if !cur.RunStartedAt.IsZero() && next.RunStartedAt.Before(cur.RunStartedAt) {
		return ErrStalePublish
	}
	return nil
}

func profileOf(items []WatchedItem) domain.TasteProfile {
	var p domain.TasteProfile
	for _, it := range items {
		p.Add(it.Rating, it.CatalogReference)
	}
	return p
}
