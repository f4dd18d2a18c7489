package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/calmspace/apiserver/internal/logging"
	"github.com/calmspace/apiserver/internal/metrics"
	"github.com/goccy/go-json"
)

// Event types published by the API.
const (
	EventUserRegistered   = "user.registered"
	EventUserDeleted      = "user.deleted"
	EventMoodEntryCreated = "mood.entry.created"
	EventChatExchange     = "chat.exchange"
)

// Event is the JSON envelope carried on the events channel.
type Event struct {
	Type       string         `json:"type"`
	UserID     int64          `json:"userId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher emits events on one channel. A Publisher without a backend drops
// every event, which keeps callers free of nil checks.
type Publisher struct {
	backend Backend
	channel string
}

func NewPublisher(backend Backend, channel string) *Publisher {
	return &Publisher{backend: backend, channel: channel}
}

// Enabled reports whether events reach a broker.
func (p *Publisher) Enabled() bool {
	return p != nil && p.backend != nil
}

// PublishEvent sends evt. Failures are logged and counted, never returned:
// an unavailable broker must not fail the request that produced the event.
func (p *Publisher) PublishEvent(ctx context.Context, evt Event) {
	if !p.Enabled() {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(evt.Type, "error").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("event", evt.Type).Msg("encode event failed")
		return
	}

	attrs := map[string]string{"type": evt.Type}
	id, err := p.backend.Publish(ctx, p.channel, strconv.FormatInt(evt.UserID, 10), data, attrs)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(evt.Type, "error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("event", evt.Type).Msg("publish event failed")
		return
	}
	metrics.EventsPublished.WithLabelValues(evt.Type, "ok").Inc()
	logging.Ctx(ctx).Debug().Str("event", evt.Type).Str("message_id", id).Msg("event published")
}

// Consume decodes events from the channel and passes them to fn until ctx is
// cancelled. Undecodable messages are acknowledged and skipped.
func (p *Publisher) Consume(ctx context.Context, fn func(context.Context, Event) error) error {
	if !p.Enabled() {
		return fmt.Errorf("mq backend is not configured")
	}
	return p.backend.Subscribe(ctx, p.channel, func(ctx context.Context, msg Message) error {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("message_id", msg.ID).Msg("skipping malformed event")
			return nil
		}
		return fn(ctx, evt)
	})
}
