package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/tideform/be-form-reviews/internal/service"
)

// NotificationPublisher publishes review decision events to NATS JetStream
// for consumption by the notification service.
//
// Subject convention: notifications.reviews.<event_type>
// Event types: submission_approved, submission_completed, submission_rejected
//
// All publish operations are non-fatal — errors are logged but never
// propagated, so notification failures never interrupt a committed decision.
type NotificationPublisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Impersonated bool           `json:"impersonated,omitempty"`
	OnBehalfOfBy string         `json:"on_behalf_of_by,omitempty"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher on an existing NATS
// connection. A nil connection yields a disabled publisher.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) (*NotificationPublisher, error) {
	if nc == nil {
		return &NotificationPublisher{log: log}, nil
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &NotificationPublisher{js: js, log: log}, nil
}

// NotifyApproved publishes an approval event. terminal marks a submission
// that completed its final stage.
func (p *NotificationPublisher) NotifyApproved(ctx context.Context, submissionID string, terminal bool, actor service.ActorContext) {
	eventType := "submission_approved"
	if terminal {
		eventType = "submission_completed"
	}
	p.publish(ctx, eventType, submissionID, actor, nil)
}

// NotifyRejected publishes a rejection event carrying the reason.
func (p *NotificationPublisher) NotifyRejected(ctx context.Context, submissionID, reason string, actor service.ActorContext) {
	p.publish(ctx, "submission_rejected", submissionID, actor, map[string]any{
		"reason": reason,
	})
}

func (p *NotificationPublisher) publish(ctx context.Context, eventType, submissionID string, actor service.ActorContext, payload map[string]any) {
	if p.js == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actor.ActorID,
		Impersonated: actor.IsImpersonating,
		OnBehalfOfBy: actor.ImpersonatorID,
		ResourceType: "submission",
		ResourceID:   submissionID,
		Severity:     "info",
		Category:     "review_decisions",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.reviews.%s", eventType)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("submission_id", submissionID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("submission_id", submissionID).
		Msg("notification: event published")
}
