package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/sentinel/ports"
)

// DefaultTopic carries session lifecycle events
const DefaultTopic = "sentinel.session"

// SessionEvent represents the end of a principal's renewable session
type SessionEvent struct {
	PrincipalID string    `json:"principal_id"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher. An empty topic
// selects DefaultTopic.
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishSessionEnded publishes a session event
func (p *WatermillPublisher) PublishSessionEnded(ctx context.Context, principalID string, reason string) error {
	event := SessionEvent{
		PrincipalID: principalID,
		Reason:      reason,
		At:          time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher discards events. It is used when events are disabled.
type NopPublisher struct{}

// PublishSessionEnded does nothing
func (NopPublisher) PublishSessionEnded(context.Context, string, string) error { return nil }
