package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

func TestMemory_ReplaceCategoryIsAtomicAndWhole(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	t0 := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

	first := []domain.CacheEntry{{Category: domain.FastTrending, CanonicalID: 1}, {Category: domain.FastTrending, CanonicalID: 2}}
	if err := m.ReplaceCategory(ctx, first, domain.StalenessRecord{Category: domain.FastTrending, LastUpdate: t0, RunStartedAt: t0}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	second := []domain.CacheEntry{{Category: domain.FastTrending, CanonicalID: 3}}
	t1 := t0.Add(24 * time.Hour)
	if err := m.ReplaceCategory(ctx, second, domain.StalenessRecord{Category: domain.FastTrending, LastUpdate: t1, RunStartedAt: t1}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	c, err := m.GetCollection(ctx, domain.FastTrending)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(c.Entries) != 1 || c.Entries[0].CanonicalID != 3 {
		t.Fatalf("expected only the second set, got %+v", c.Entries)
	}
	if c.LastUpdate == nil || !c.LastUpdate.Equal(t1) {
		t.Fatalf("expected last update %v, got %v", t1, c.LastUpdate)
	}
}

func TestMemory_RejectsOlderRun(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newer := time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)

	_ = m.ReplaceCategory(ctx, []domain.CacheEntry{{CanonicalID: 1}},
		domain.StalenessRecord{Category: domain.CuratedWeekly, LastUpdate: newer, RunStartedAt: newer})

	err := m.ReplaceCategory(ctx, []domain.CacheEntry{{CanonicalID: 2}},
		domain.StalenessRecord{Category: domain.CuratedWeekly, LastUpdate: newer.Add(time.Minute), RunStartedAt: older})
	if !errors.Is(err, ErrStalePublish) {
		t.Fatalf("expected ErrStalePublish, got %v", err)
	}

	c, _ := m.GetCollection(ctx, domain.CuratedWeekly)
	if len(c.Entries) != 1 || c.Entries[0].CanonicalID != 1 {
		t.Fatalf("stale publish must not change entries, got %+v", c.Entries)
	}
	rec, _, _ := m.GetStaleness(ctx, domain.CuratedWeekly)
	if !rec.LastUpdate.Equal(newer) {
		t.Fatalf("stale publish must not change the record, got %v", rec.LastUpdate)
	}
}

func TestMemory_EmptyCollection(t *testing.T) {
	c, err := NewMemory().GetCollection(context.Background(), domain.RelevantReleases)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.LastUpdate != nil || c.Entries == nil || len(c.Entries) != 0 {
		t.Fatalf("expected empty non-nil entries and no last update, got %+v", c)
	}
}

func TestMemory_ChallengeCreateOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	a, _ := domain.NewChallenge("2026-W42", "First", "", []domain.ChallengeItem{{CanonicalID: 1}}, now)
	b, _ := domain.NewChallenge("2026-W42", "Second", "", []domain.ChallengeItem{{CanonicalID: 2}}, now)

	created, err := m.CreateChallengeIfAbsent(ctx, a)
	if err != nil || !created {
		t.Fatalf("expected first create, got %v %v", created, err)
	}
	created, err = m.CreateChallengeIfAbsent(ctx, b)
	if err != nil || created {
		t.Fatalf("expected second create to be ignored, got %v %v", created, err)
	}
	got, _ := m.GetChallenge(ctx, "2026-W42")
	if got.Theme != "First" {
		t.Fatalf("challenge overwritten: %+v", got)
	}
	if ok, _ := m.ChallengeExists(ctx, "2026-W42"); !ok {
		t.Fatal("expected challenge to exist")
	}
}

func TestMemory_UpdateChallenge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	c, _ := domain.NewChallenge("2026-W42", "Trilogy", "", []domain.ChallengeItem{{CanonicalID: 1}, {CanonicalID: 2}}, now)
	_, _ = m.CreateChallengeIfAbsent(ctx, c)

	got, err := m.UpdateChallenge(ctx, "2026-W42", func(c *domain.Challenge) error { return c.SetStep(0, true, now) })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.Steps[0].Completed {
		t.Fatal("step not completed")
	}

	_, err = m.UpdateChallenge(ctx, "2026-W42", func(c *domain.Challenge) error { return c.SetStep(9, true, now) })
	if !errors.Is(err, domain.ErrStepOutOfRange) {
		t.Fatalf("expected ErrStepOutOfRange, got %v", err)
	}
	if _, err := m.UpdateChallenge(ctx, "2026-W01", func(*domain.Challenge) error { return nil }); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge, got %v", err)
	}
}

func TestMemory_LoadTasteProfile(t *testing.T) {
	m := NewMemory(
		WatchedItem{CatalogReference: domain.CatalogReference{ID: 1, Title: "Dark"}, Rating: domain.RatingLoved},
		WatchedItem{CatalogReference: domain.CatalogReference{ID: 2, Title: "Lost"}, Rating: domain.ParseRating("")},
	)
	p, err := m.LoadTasteProfile(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Loved) != 1 || len(p.Neutral) != 1 {
		t.Fatalf("unexpected buckets: %+v", p)
	}
}
