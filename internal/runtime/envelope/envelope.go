// Package envelope defines the versioned, provider-agnostic structures
// exchanged between ingress, event routing, and the outbound pipeline.
package envelope

import "time"

// TenantScope identifies the tenant (and optional team) a message or event
// belongs to. An empty Team means the tenant-wide default scope.
type TenantScope struct {
	Tenant string `json:"tenant"`
	Team   string `json:"team,omitempty"`
}

// DefaultTeam is used wherever a route or record omits the team segment.
const DefaultTeam = "default"

// TeamOrDefault returns the team, falling back to DefaultTeam.
func (s TenantScope) TeamOrDefault() string {
	if s.Team == "" {
		return DefaultTeam
	}
	return s.Team
}

// Destination names a delivery target of a canonical message.
type Destination struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
}

// Actor describes the sender of a canonical message.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// Attachment carries out-of-band content referenced by a canonical message.
type Attachment struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
	DataB64     string `json:"data_b64,omitempty"`
}

// CanonicalMessage is the provider-agnostic message shape the outbound
// pipeline renders and encodes. It is treated as immutable once constructed;
// whichever pipeline stage holds it owns it.
type CanonicalMessage struct {
	ID            string         `json:"id"`
	Scope         TenantScope    `json:"scope"`
	Channel       string         `json:"channel"`
	SessionID     string         `json:"session_id,omitempty"`
	ReplyScope    map[string]any `json:"reply_scope,omitempty"`
	From          *Actor         `json:"from,omitempty"`
	To            []Destination  `json:"to,omitempty"`
	Text          string         `json:"text,omitempty"`
	Attachments   []Attachment   `json:"attachments,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// Summary returns the compact projection of the message recorded in DLQ
// entries instead of the full body.
func (m *CanonicalMessage) Summary() map[string]any {
	return map[string]any{
		"id":                m.ID,
		"channel":           m.Channel,
		"session_id":        m.SessionID,
		"text":              m.Text,
		"attachments_count": len(m.Attachments),
		"correlation_id":    m.CorrelationID,
	}
}

// EventSource names where an event was produced.
type EventSource struct {
	Domain    string `json:"domain"`
	Provider  string `json:"provider"`
	HandlerID string `json:"handler_id,omitempty"`
}

// EventScope is the tenant scope an event applies to.
type EventScope struct {
	Tenant string `json:"tenant"`
	Team   string `json:"team,omitempty"`
}

// EventEnvelope is the canonical event emitted by ingress handlers and routed
// to application packs.
type EventEnvelope struct {
	EventID       string      `json:"event_id"`
	EventType     string      `json:"event_type"`
	OccurredAt    string      `json:"occurred_at"`
	Source        EventSource `json:"source"`
	Scope         EventScope  `json:"scope"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Payload       any         `json:"payload"`
	HTTP          any         `json:"http,omitempty"`
	Raw           string      `json:"raw,omitempty"`
}

// OccurredTime parses OccurredAt as RFC 3339, returning the zero time when
// the field is absent or malformed.
func (e *EventEnvelope) OccurredTime() time.Time {
	t, err := time.Parse(time.RFC3339, e.OccurredAt)
	if err != nil {
		return time.Time{}
	}
	return t
}
