// Package events provides a fire-and-forget NATS publisher for domain
// notifications. Consumers use them to invalidate read caches.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectRefreshPublished fires after a category's result set is committed.
const SubjectRefreshPublished = "refresh.published"

// Event is the canonical envelope sent to every subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Publisher publishes events on core NATS.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	nc  Conn
	log *zap.Logger
}

// New creates a Publisher. Pass nc=nil to get a no-op stub.
func New(nc Conn, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{nc: nc, log: log}
}

// Publish sends an event. Failures are logged as warnings and never surface
// to the caller.
func (p *Publisher) Publish(subject, eventName string, props map[string]any) {
	if p == nil || p.nc == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Decode parses an envelope received on a subscription.
func Decode(m *nats.Msg) (Event, error) {
	var ev Event
	err := json.Unmarshal(m.Data, &ev)
	return ev, err
}
