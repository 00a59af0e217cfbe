// Package analytics publishes fire-and-forget business events to NATS
// JetStream. Ratings moderation events double as the feed for the audit
// trail consumer.
package analytics

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects, one per event type. The ratings.* family is consumed by both
// the analytics warehouse loader and the moderation audit worker.
const (
	SubjectResourceRegistered   = "analytics.resources.registered"
	SubjectResourceViewed       = "analytics.resources.viewed"
	SubjectRatingSubmitted      = "analytics.ratings.submitted"
	SubjectRatingHelpfulToggled = "analytics.ratings.helpful_toggled"
	SubjectRatingReported       = "analytics.ratings.reported"
	SubjectRatingHidden         = "analytics.ratings.rating_hidden"
)

// Event is the canonical envelope sent to all analytics.* subjects.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher publishes analytics events to NATS JetStream. A nil pointer is
// a safe no-op, so services without NATS skip the wiring entirely.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// Publish sends an event asynchronously. Failures are logged and never
// surface to the caller; losing an analytics event must not fail a request.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}

	data, err := json.Marshal(Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	})
	if err != nil {
		p.log.Warn("analytics marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("analytics publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
