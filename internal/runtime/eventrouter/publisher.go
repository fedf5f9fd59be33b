package eventrouter

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/packflow/internal/runtime/envelope"
	"github.com/drblury/packflow/internal/runtime/ids"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
	"github.com/drblury/packflow/internal/runtime/metadata"
)

// Metadata keys stamped on published event messages.
const (
	MetaEventID       = "event_id"
	MetaEventType     = "event_type"
	MetaTenant        = "tenant"
	MetaTeam          = "team"
	MetaCorrelationID = "correlation_id"
)

// Publisher puts event envelopes on the bus topic the router consumes.
type Publisher struct {
	publisher message.Publisher
	topic     string
	base      metadata.Metadata
}

// NewPublisher wraps a bus publisher for the given topic.
func NewPublisher(publisher message.Publisher, topic string) *Publisher {
	return &Publisher{publisher: publisher, topic: topic}
}

// WithBaseMetadata returns a publisher that stamps the given metadata on
// every message before the per-event keys. Per-event keys win on conflict.
func (p *Publisher) WithBaseMetadata(base metadata.Metadata) *Publisher {
	return &Publisher{publisher: p.publisher, topic: p.topic, base: p.base.WithAll(base)}
}

// Publish enqueues the events. Publishing is synchronous with respect to the
// bus so callers know the events are enqueued once this returns.
func (p *Publisher) Publish(events ...envelope.EventEnvelope) error {
	for _, event := range events {
		payload, err := jsoncodec.Marshal(event)
		if err != nil {
			return err
		}
		msg := message.NewMessage(ids.CreateULID(), payload)
		msg.Metadata = metadata.ToWatermill(p.base)
		msg.Metadata.Set(MetaEventID, event.EventID)
		msg.Metadata.Set(MetaEventType, event.EventType)
		msg.Metadata.Set(MetaTenant, event.Scope.Tenant)
		if event.Scope.Team != "" {
			msg.Metadata.Set(MetaTeam, event.Scope.Team)
		}
		if event.CorrelationID != "" {
			msg.Metadata.Set(MetaCorrelationID, event.CorrelationID)
		}
		if err := p.publisher.Publish(p.topic, msg); err != nil {
			return err
		}
	}
	return nil
}
