// Package eventrouter dispatches event envelopes to application packs. The
// destination is resolved per event by walking team, tenant, then root level
// defaults; a missing destination drops the event with a warning instead of
// failing the producer.
package eventrouter

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/packflow/internal/runtime/envelope"
	errspkg "github.com/drblury/packflow/internal/runtime/errors"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
	"github.com/drblury/packflow/internal/runtime/registry"
)

// Router is the stateless event dispatcher.
type Router struct {
	registry *registry.Registry
	runtime  pack.Runtime
	log      logging.ServiceLogger
}

// NewRouter builds an event router over the registry and pack runtime. It
// panics without a registry since no event could ever resolve a destination.
func NewRouter(reg *registry.Registry, runtime pack.Runtime, log logging.ServiceLogger) *Router {
	if reg == nil {
		panic(errspkg.ErrRegistryRequired)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Router{registry: reg, runtime: runtime, log: log}
}

// Dispatch routes one event to its destination application pack. A missing
// destination is a soft failure: the event is logged and dropped.
func (r *Router) Dispatch(ctx context.Context, event envelope.EventEnvelope) error {
	app, ok := r.registry.ResolveApp(event.Scope.Tenant, event.Scope.Team)
	if !ok {
		r.log.Warn("no destination app pack, dropping event", logging.LogFields{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"tenant":     event.Scope.Tenant,
			"team":       event.Scope.Team,
		})
		return nil
	}

	input, err := jsoncodec.Marshal(envelope.EventFlowInputV1{
		Event:         &event,
		Events:        []envelope.EventEnvelope{event},
		Tenant:        event.Scope.Tenant,
		Team:          event.Scope.Team,
		CorrelationID: event.CorrelationID,
	})
	if err != nil {
		return err
	}

	_, err = r.runtime.Invoke(ctx, pack.Call{
		Domain:        "events",
		Provider:      app.PackID,
		Op:            app.EntryOp,
		Tenant:        event.Scope.Tenant,
		Team:          event.Scope.Team,
		CorrelationID: event.CorrelationID,
		Input:         input,
	})
	if err != nil {
		return err
	}

	r.log.Debug("event routed", logging.LogFields{
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"pack_id":    app.PackID,
	})
	return nil
}

// HandleMessage adapts Dispatch to a watermill no-publish handler so routing
// runs inside the service's middleware chain.
func (r *Router) HandleMessage(msg *message.Message) error {
	var event envelope.EventEnvelope
	if err := jsoncodec.Unmarshal(msg.Payload, &event); err != nil {
		r.log.Error("undecodable event payload", err, logging.LogFields{
			"message_uuid": msg.UUID,
		})
		// malformed payloads would never succeed on redelivery
		return nil
	}
	return r.Dispatch(msg.Context(), event)
}
