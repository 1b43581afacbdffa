package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/enrich"
	"github.com/example/media-platform/services/refresher/internal/lock"
	"github.com/example/media-platform/services/refresher/internal/publisher"
	"github.com/example/media-platform/services/refresher/internal/staleness"
	"github.com/example/media-platform/services/refresher/internal/store"
	"github.com/example/media-platform/services/refresher/internal/suggest"
	"github.com/example/media-platform/services/refresher/internal/tmdb"
)

var brt = time.FixedZone("BRT", -3*60*60)

type fakeCatalog struct {
	nowPlaying []tmdb.Result
	trending   []tmdb.Result
	providers  map[int][]tmdb.Result
	upcoming   []tmdb.Result
	onAir      []tmdb.Result
	err        error

	mu    sync.Mutex
	calls int
}

func (f *fakeCatalog) count() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCatalog) NowPlaying(context.Context) ([]tmdb.Result, error) {
	f.count()
	return f.nowPlaying, f.err
}

func (f *fakeCatalog) Trending(context.Context) ([]tmdb.Result, error) {
	f.count()
	return f.trending, f.err
}

func (f *fakeCatalog) TopOnProvider(_ context.Context, id int) ([]tmdb.Result, error) {
	f.count()
	return f.providers[id], f.err
}

func (f *fakeCatalog) Upcoming(context.Context) ([]tmdb.Result, error) {
	f.count()
	return f.upcoming, f.err
}

func (f *fakeCatalog) OnTheAir(context.Context) ([]tmdb.Result, error) {
	f.count()
	return f.onAir, f.err
}

type fakeSuggester struct {
	raws    []domain.RawSuggestion
	plan    suggest.ChallengePlan
	picks   []suggest.ReleasePick
	err     error
	offered []suggest.ReleaseCandidate
}

func (f *fakeSuggester) RequestSuggestions(context.Context, domain.RefreshCategory, domain.TasteProfile, []string) ([]domain.RawSuggestion, error) {
	return f.raws, f.err
}

func (f *fakeSuggester) RequestChallenge(context.Context, domain.TasteProfile, []string, time.Time) (suggest.ChallengePlan, error) {
	return f.plan, f.err
}

func (f *fakeSuggester) RequestRelevantReleases(_ context.Context, _ domain.TasteProfile, releases []suggest.ReleaseCandidate) ([]suggest.ReleasePick, error) {
	f.offered = releases
	return f.picks, f.err
}

// fakeEnricher resolves titles present in ids and drops the rest.
type fakeEnricher struct {
	ids map[string]int64
}

func (f fakeEnricher) ResolveAndEnrich(_ context.Context, _ domain.RefreshCategory, raws []domain.RawSuggestion, _ map[int64]struct{}) ([]enrich.Group, error) {
	var groups []enrich.Group
	for _, raw := range raws {
		id, ok := f.ids[raw.Title]
		if !ok {
			continue
		}
		rc := domain.ResolvedCandidate{RawSuggestion: raw, CanonicalID: id, MatchedKind: raw.Kind, DisplayTitle: raw.Title}
		if n := len(groups); n > 0 && groups[n-1].Name == raw.Group {
			groups[n-1].Items = append(groups[n-1].Items, rc)
			continue
		}
		groups = append(groups, enrich.Group{Name: raw.Group, Items: []domain.ResolvedCandidate{rc}})
	}
	return groups, nil
}

type harness struct {
	runner  *Runner
	store   *store.Memory
	catalog *fakeCatalog
	suggest *fakeSuggester
	now     time.Time
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	st := store.NewMemory(store.WatchedItem{
		CatalogReference: domain.CatalogReference{ID: 500, Kind: domain.KindTV, Title: "Dark"},
		Rating:           domain.RatingLoved,
	})
	locker, err := lock.NewLocker("", nil, false)
	if err != nil {
		t.Fatalf("locker: %v", err)
	}
	h := &harness{store: st, catalog: &fakeCatalog{}, suggest: &fakeSuggester{}, now: now}
	h.runner = &Runner{
		Catalog:   h.catalog,
		Suggest:   h.suggest,
		Enrich:    fakeEnricher{ids: map[string]int64{"Alpha": 1, "Beta": 2, "Gamma": 3}},
		Staleness: staleness.New(st, brt),
		Publisher: publisher.New(st, nil, nil, ""),
		Store:     st,
		Locker:    locker,
		Loc:       brt,
		Now:       func() time.Time { return h.now },
	}
	return h
}

func movie(id int64, title, date string) tmdb.Result {
	return tmdb.Result{ID: id, MediaType: "movie", Title: title, ReleaseDate: date}
}

func TestFastTrending_BuildsRankedEntries(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	h.catalog.nowPlaying = []tmdb.Result{
		movie(1, "Dune", "2024-03-01"),
		movie(2, "Undated", ""),
		movie(3, "Alien (1979)", "1979-05-25"),
		movie(1, "Dune", "2024-03-01"),
	}
	h.catalog.trending = []tmdb.Result{
		movie(1, "Dune", "2024-03-01"),
		{ID: 9, MediaType: "person", Name: "Someone"},
		{ID: 4, MediaType: "tv", Name: "Severance", FirstAirDate: "2022-02-18"},
	}
	var netflix []tmdb.Result
	for i := 0; i < 12; i++ {
		netflix = append(netflix, movie(int64(100+i), fmt.Sprintf("N%d", i), "2025-01-01"))
	}
	h.catalog.providers = map[int][]tmdb.Result{tmdb.ProviderNetflix: netflix}

	res := h.runner.RunFastTrending(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %s: %v", res.Status, res.Err)
	}
	if res.RunID == "" {
		t.Fatal("expected a run id")
	}

	c, _ := h.store.GetCollection(context.Background(), domain.FastTrending)
	var nowPlaying, trending, provider []domain.CacheEntry
	for _, e := range c.Entries {
		switch e.ListType {
		case ListNowPlaying:
			nowPlaying = append(nowPlaying, e)
		case ListTrending:
			trending = append(trending, e)
		case ListProvider:
			provider = append(provider, e)
		}
	}
	if len(nowPlaying) != 2 || nowPlaying[0].Title != "Dune (2024)" || nowPlaying[1].Title != "Alien (1979)" {
		t.Fatalf("unexpected now playing entries: %+v", nowPlaying)
	}
	if nowPlaying[1].Rank != 2 {
		t.Fatalf("expected rank 2, got %d", nowPlaying[1].Rank)
	}
	if len(trending) != 2 || trending[1].Kind != domain.KindTV || trending[1].Title != "Severance (2022)" {
		t.Fatalf("unexpected trending entries: %+v", trending)
	}
	if len(provider) != TopPerProvider || provider[0].ProviderID != tmdb.ProviderNetflix {
		t.Fatalf("expected top %d on provider, got %+v", TopPerProvider, provider)
	}
}

func TestFastTrending_SkippedWhenFresh(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	if res := h.runner.RunFastTrending(context.Background()); res.Status != StatusOK {
		t.Fatalf("first run: %s %v", res.Status, res.Err)
	}
	rec, ok, _ := h.store.GetStaleness(context.Background(), domain.FastTrending)
	if !ok || !rec.LastUpdate.Equal(h.now) {
		t.Fatalf("expected LastUpdate stamped at the run clock %s, got %+v", h.now, rec)
	}
	calls := h.catalog.callCount()

	h.now = h.now.Add(23 * time.Hour)
	res := h.runner.RunFastTrending(context.Background())
	if res.Status != StatusSkipped || res.Summary != "not due" {
		t.Fatalf("expected skipped as not due, got %+v", res)
	}
	if h.catalog.callCount() != calls {
		t.Fatal("a skipped run must not call the catalog")
	}

	h.now = h.now.Add(time.Hour)
	if res := h.runner.RunFastTrending(context.Background()); res.Status != StatusOK {
		t.Fatalf("expected ok after 24h, got %s", res.Status)
	}
}

func TestRun_SkippedWhenLockHeld(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	key := "fast_trending:" + domain.DayKey(h.now, brt)
	lease, ok, _ := h.runner.Locker.Acquire(context.Background(), key, time.Minute)
	if !ok {
		t.Fatal("expected to take the lock")
	}
	defer lease.Release(context.Background())

	res := h.runner.Run(context.Background(), domain.FastTrending)
	if res.Status != StatusSkipped || !strings.Contains(res.Summary, "already running") {
		t.Fatalf("expected skipped while locked, got %+v", res)
	}
	if h.catalog.callCount() != 0 {
		t.Fatal("locked run must not call the catalog")
	}
}

func TestRun_FailureKeepsPublishedData(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	old := h.now.Add(-48 * time.Hour)
	_ = h.store.ReplaceCategory(context.Background(), []domain.CacheEntry{{CanonicalID: 42}},
		domain.StalenessRecord{Category: domain.FastTrending, LastUpdate: old, RunStartedAt: old})
	h.catalog.err = errors.New("tmdb: 503")

	res := h.runner.RunFastTrending(context.Background())
	if res.Status != StatusFailed || res.Err == nil {
		t.Fatalf("expected failed, got %+v", res)
	}
	c, _ := h.store.GetCollection(context.Background(), domain.FastTrending)
	if len(c.Entries) != 1 || c.Entries[0].CanonicalID != 42 || !c.LastUpdate.Equal(old) {
		t.Fatalf("failed run changed published data: %+v", c)
	}
}

type stalePublisher struct{}

func (stalePublisher) Publish(context.Context, domain.RefreshCategory, []domain.CacheEntry, time.Time, time.Time) error {
	return fmt.Errorf("publish: %w", store.ErrStalePublish)
}

func TestRun_StalePublishIsSkipped(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	h.runner.Publisher = stalePublisher{}

	res := h.runner.RunFastTrending(context.Background())
	if res.Status != StatusSkipped || res.Err != nil {
		t.Fatalf("expected skipped, got %+v", res)
	}
}

func TestCuratedWeekly_CarriesGroupsAndRationale(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 13, 12, 0, 0, 0, time.UTC))
	h.suggest.raws = []domain.RawSuggestion{
		{Group: "Slow burn", Title: "Alpha", Kind: domain.KindMovie, Rationale: "moody"},
		{Group: "Slow burn", Title: "Nope", Kind: domain.KindMovie},
		{Group: "Series", Title: "Beta", Kind: domain.KindTV, Rationale: "like Dark"},
	}

	res := h.runner.RunCuratedWeekly(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %s: %v", res.Status, res.Err)
	}
	c, _ := h.store.GetCollection(context.Background(), domain.CuratedWeekly)
	if len(c.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", c.Entries)
	}
	if c.Entries[0].Group != "Slow burn" || c.Entries[0].Rationale != "moody" || c.Entries[0].Rank != 1 {
		t.Fatalf("unexpected first entry: %+v", c.Entries[0])
	}
	if c.Entries[1].Group != "Series" || c.Entries[1].Kind != domain.KindTV || c.Entries[1].Rank != 2 {
		t.Fatalf("unexpected second entry: %+v", c.Entries[1])
	}

	h.now = h.now.Add(24 * time.Hour)
	if res := h.runner.RunCuratedWeekly(context.Background()); res.Status != StatusSkipped {
		t.Fatalf("expected skipped later in the same week, got %s", res.Status)
	}

	h.now = time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	if res := h.runner.RunCuratedWeekly(context.Background()); res.Status != StatusOK {
		t.Fatalf("expected ok once the next week starts, got %s: %v", res.Status, res.Err)
	}
}

func TestCuratedWeekly_SchemaErrorFails(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 13, 12, 0, 0, 0, time.UTC))
	h.suggest.err = &suggest.SchemaError{Category: domain.CuratedWeekly, Reason: "no groups"}

	res := h.runner.RunCuratedWeekly(context.Background())
	var se *suggest.SchemaError
	if res.Status != StatusFailed || !errors.As(res.Err, &se) {
		t.Fatalf("expected failed with schema error, got %+v", res)
	}
	if _, ok, _ := h.store.GetStaleness(context.Background(), domain.CuratedWeekly); ok {
		t.Fatal("failed run must not write a staleness record")
	}
}

func TestWeeklyChallenge_SingleItemBecomesTarget(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC))
	h.suggest.plan = suggest.ChallengePlan{Theme: "Solo", Rationale: "r", Items: []domain.RawSuggestion{
		{Title: "Alpha", Kind: domain.KindMovie},
		{Title: "Missing", Kind: domain.KindMovie},
	}}

	res := h.runner.RunWeeklyChallenge(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %s: %v", res.Status, res.Err)
	}
	c, err := h.store.GetChallenge(context.Background(), "2026-W42")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if c.Target == nil || c.Target.CanonicalID != 1 || len(c.Steps) != 0 {
		t.Fatalf("expected single target, got %+v", c)
	}

	if res := h.runner.RunWeeklyChallenge(context.Background()); res.Status != StatusSkipped {
		t.Fatalf("expected skipped once created, got %s", res.Status)
	}
}

func TestWeeklyChallenge_SeveralItemsBecomeSteps(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC))
	h.suggest.plan = suggest.ChallengePlan{Theme: "Trilogy", Items: []domain.RawSuggestion{
		{Title: "Alpha", Kind: domain.KindMovie},
		{Title: "Beta", Kind: domain.KindMovie},
		{Title: "Gamma", Kind: domain.KindMovie},
	}}

	if res := h.runner.RunWeeklyChallenge(context.Background()); res.Status != StatusOK {
		t.Fatalf("expected ok, got %s: %v", res.Status, res.Err)
	}
	c, _ := h.store.GetChallenge(context.Background(), "2026-W42")
	if c.Target != nil || len(c.Steps) != 3 || c.Steps[2].CanonicalID != 3 {
		t.Fatalf("expected three ordered steps, got %+v", c)
	}
}

func TestWeeklyChallenge_NothingResolvedFails(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC))
	h.suggest.plan = suggest.ChallengePlan{Theme: "Obscure", Items: []domain.RawSuggestion{{Title: "Nope", Kind: domain.KindMovie}}}

	res := h.runner.RunWeeklyChallenge(context.Background())
	if res.Status != StatusFailed || !errors.Is(res.Err, ErrNoChallengeItems) {
		t.Fatalf("expected failed, got %+v", res)
	}
	if ok, _ := h.store.ChallengeExists(context.Background(), "2026-W42"); ok {
		t.Fatal("no challenge should have been created")
	}
}

func TestRelevantReleases_OnlyOfferedFutureItems(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	h.catalog.upcoming = []tmdb.Result{
		movie(10, "Past", "2026-10-01"),
		movie(11, "Soon", "2026-11-20"),
		movie(500, "Already seen", "2026-12-01"),
	}
	h.catalog.onAir = []tmdb.Result{{ID: 20, MediaType: "tv", Name: "Show", FirstAirDate: "2026-10-14"}}
	h.suggest.picks = []suggest.ReleasePick{
		{ID: 20, Kind: domain.KindTV, Reason: "new season"},
		{ID: 10, Kind: domain.KindMovie, Reason: "not offered"},
		{ID: 11, Kind: domain.KindMovie, Reason: "sequel"},
	}

	res := h.runner.RunRelevantReleases(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %s: %v", res.Status, res.Err)
	}
	if len(h.suggest.offered) != 2 {
		t.Fatalf("expected only future unseen releases offered, got %+v", h.suggest.offered)
	}
	c, _ := h.store.GetCollection(context.Background(), domain.RelevantReleases)
	if len(c.Entries) != 2 || c.Entries[0].CanonicalID != 20 || c.Entries[1].CanonicalID != 11 {
		t.Fatalf("unexpected entries: %+v", c.Entries)
	}
	if c.Entries[0].ListType != ListOnTheAir || c.Entries[1].Rationale != "sequel" {
		t.Fatalf("unexpected entry fields: %+v", c.Entries)
	}
}

func TestDispatchCategory(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want domain.RefreshCategory
	}{
		{"monday", time.Date(2026, 10, 12, 12, 0, 0, 0, brt), domain.WeeklyChallenge},
		{"tuesday", time.Date(2026, 10, 13, 12, 0, 0, 0, brt), domain.CuratedWeekly},
		{"wednesday", time.Date(2026, 10, 14, 12, 0, 0, 0, brt), domain.RelevantReleases},
		{"thursday", time.Date(2026, 10, 15, 12, 0, 0, 0, brt), domain.FastTrending},
		{"sunday", time.Date(2026, 10, 18, 12, 0, 0, 0, brt), domain.FastTrending},
		{"monday utc is still sunday locally", time.Date(2026, 10, 12, 1, 0, 0, 0, time.UTC), domain.FastTrending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DispatchCategory(tc.now, brt); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDispatch_RunsScheduledCategory(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 13, 12, 0, 0, 0, time.UTC))
	h.suggest.raws = []domain.RawSuggestion{{Group: "g", Title: "Alpha", Kind: domain.KindMovie}}

	res := h.runner.Dispatch(context.Background(), h.now)
	if res.Category != domain.CuratedWeekly || res.Status != StatusOK {
		t.Fatalf("expected curated weekly ok, got %+v", res)
	}
}
