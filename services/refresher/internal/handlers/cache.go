package handlers

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/media-platform/internal/platform/events"
	"github.com/example/media-platform/services/refresher/internal/publisher"
)

// DefaultCacheTTL is used when NewTTLCache gets a non-positive ttl.
const DefaultCacheTTL = 5 * time.Minute

type cacheItem struct {
	val       any
	expiresAt time.Time
}

// TTLCache is an in-memory response cache with per-entry expiry. Publish
// notifications evict the affected key early.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
	now   func() time.Time
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &TTLCache{items: make(map[string]cacheItem), ttl: ttl, now: time.Now}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return it.val, true
}

func (c *TTLCache) Set(key string, v any) {
	c.mu.Lock()
	c.items[key] = cacheItem{val: v, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops key, or everything when key is empty.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		c.items = make(map[string]cacheItem)
		return
	}
	delete(c.items, key)
}

// Subscriber is the subset of *nats.Conn used for invalidation.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// SubscribeInvalidation evicts a category's cached collection whenever a
// publish event for it arrives on subject. Undecodable events clear the
// whole cache.
func (c *TTLCache) SubscribeInvalidation(nc Subscriber, subject string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	_, err := nc.Subscribe(subject, func(m *nats.Msg) {
		ev, err := events.Decode(m)
		if err != nil {
			log.Warn("cache: bad invalidation event, clearing cache", zap.Error(err))
			c.Invalidate("")
			return
		}
		category, _ := ev.Properties["category"].(string)
		c.Invalidate(collectionKey(category))
	})
	return err
}

// Notifier evicts a category's cached collection on in-process publishes, so
// reads see a commit without waiting for a NATS round trip or the TTL.
func (c *TTLCache) Notifier() publisher.NotifierFunc {
	return func(subject, _ string, props map[string]any) {
		if subject != events.SubjectRefreshPublished {
			return
		}
		category, _ := props["category"].(string)
		c.Invalidate(collectionKey(category))
	}
}

func collectionKey(category string) string {
	if category == "" {
		return ""
	}
	return "collection:" + category
}
