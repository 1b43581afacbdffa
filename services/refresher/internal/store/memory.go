package store

import (
	"context"
	"sync"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

// Memory is an in-process Store for development and tests. State is lost on
// restart and is not shared between instances.
type Memory struct {
	mu         sync.Mutex
	staleness  map[domain.RefreshCategory]domain.StalenessRecord
	entries    map[domain.RefreshCategory][]domain.CacheEntry
	challenges map[string]domain.Challenge
	watched    []WatchedItem
}

func NewMemory(watched ...WatchedItem) *Memory {
	return &Memory{
		staleness:  make(map[domain.RefreshCategory]domain.StalenessRecord),
		entries:    make(map[domain.RefreshCategory][]domain.CacheEntry),
		challenges: make(map[string]domain.Challenge),
		watched:    append([]WatchedItem(nil), watched...),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) GetStaleness(_ context.Context, category domain.RefreshCategory) (domain.StalenessRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.staleness[category]
	return rec, ok, nil
}

func (m *Memory) ChallengeExists(_ context.Context, weekID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.challenges[weekID]
	return ok, nil
}

func (m *Memory) ReplaceCategory(_ context.Context, entries []domain.CacheEntry, rec domain.StalenessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.staleness[rec.Category]; ok {
		if err := checkMonotonic(cur, rec); err != nil {
			return err
		}
	}
	m.entries[rec.Category] = append([]domain.CacheEntry(nil), entries...)
	m.staleness[rec.Category] = rec
	return nil
}

func (m *Memory) GetCollection(_ context.Context, category domain.RefreshCategory) (domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := domain.Collection{
		Category: category,
		Entries:  append([]domain.CacheEntry{}, m.entries[category]...),
	}
	if rec, ok := m.staleness[category]; ok {
		last := rec.LastUpdate
		c.LastUpdate = &last
	}
	return c, nil
}

func (m *Memory) CreateChallengeIfAbsent(_ context.Context, c domain.Challenge) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.challenges[c.WeekID]; ok {
		return false, nil
	}
	m.challenges[c.WeekID] = cloneChallenge(c)
	return true, nil
}

func (m *Memory) GetChallenge(_ context.Context, weekID string) (domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[weekID]
	if !ok {
		return domain.Challenge{}, ErrNoChallenge
	}
	return cloneChallenge(c), nil
}

func (m *Memory) UpdateChallenge(_ context.Context, weekID string, mutate func(*domain.Challenge) error) (domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[weekID]
	if !ok {
		return domain.Challenge{}, ErrNoChallenge
	}
	c = cloneChallenge(c)
	if err := mutate(&c); err != nil {
		return domain.Challenge{}, err
	}
	m.challenges[weekID] = c
	return cloneChallenge(c), nil
}

func (m *Memory) LoadTasteProfile(context.Context) (domain.TasteProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return profileOf(m.watched), nil
}

// AddWatched appends items to the watched history.
func (m *Memory) AddWatched(items ...WatchedItem) {
	m.mu.Lock()
	m.watched = append(m.watched, items...)
	m.mu.Unlock()
}

func (m *Memory) Ping(context.Context) error { return nil }

func cloneChallenge(c domain.Challenge) domain.Challenge {
	if c.Target != nil {
		t := *c.Target
		c.Target = &t
	}
	c.Steps = append([]domain.ChallengeStep(nil), c.Steps...)
	return c
}
