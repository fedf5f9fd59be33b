package envelope

// Pair is a two-element [name, value] tuple. Query parameters and headers
// travel as ordered pairs rather than maps so repeated keys survive.
type Pair [2]string

func (p Pair) Name() string  { return p[0] }
func (p Pair) Value() string { return p[1] }

// IngressRequestV1 is the canonical payload handed to a pack's ingest_http
// operation for every inbound HTTP request.
type IngressRequestV1 struct {
	V             int    `json:"v"`
	Domain        string `json:"domain"`
	Provider      string `json:"provider"`
	Handler       string `json:"handler,omitempty"`
	BindingID     string `json:"binding_id,omitempty"`
	Tenant        string `json:"tenant"`
	Team          string `json:"team,omitempty"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Query         []Pair `json:"query"`
	Headers       []Pair `json:"headers"`
	Body          []byte `json:"body"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RemoteAddr    string `json:"remote_addr,omitempty"`
}

// IngressHTTPResponse is the HTTP part of an ingest_http result, returned
// verbatim to the caller.
type IngressHTTPResponse struct {
	Status  int    `json:"status"`
	Headers []Pair `json:"headers"`
	Body    []byte `json:"body,omitempty"`
}

// IngressResult pairs the HTTP response with the events the handler emitted.
type IngressResult struct {
	Response IngressHTTPResponse
	Events   []EventEnvelope
}

// RenderPlanInV1 asks a provider pack to plan the rendering of a canonical
// message.
type RenderPlanInV1 struct {
	V       int `json:"v"`
	Message any `json:"message"`
}

// EncodeInV1 asks a provider pack to encode a message using a previously
// rendered plan.
type EncodeInV1 struct {
	V       int `json:"v"`
	Message any `json:"message"`
	Plan    any `json:"plan"`
}

// EncodeOutV1 is the result of an encode operation.
type EncodeOutV1 struct {
	OK      bool               `json:"ok"`
	Payload *ProviderPayloadV1 `json:"payload,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ProviderPayloadV1 is the provider-specific wire payload produced by encode
// and consumed by send_payload.
type ProviderPayloadV1 struct {
	ContentType  string `json:"content_type"`
	BodyB64      string `json:"body_b64"`
	MetadataJSON string `json:"metadata_json,omitempty"`
}

// TenantHint accompanies outbound provider calls.
type TenantHint struct {
	Tenant        string `json:"tenant"`
	Team          string `json:"team,omitempty"`
	User          string `json:"user,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// SendPayloadInV1 asks a provider pack to deliver an encoded payload.
type SendPayloadInV1 struct {
	V          int               `json:"v"`
	Payload    ProviderPayloadV1 `json:"payload"`
	Tenant     TenantHint        `json:"tenant"`
	ReplyScope any               `json:"reply_scope,omitempty"`
}

// SendPayloadOutV1 is the result of a send_payload operation.
type SendPayloadOutV1 struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable"`
}

// TimerTickInputV1 is the payload delivered to timer handler operations on
// every tick.
type TimerTickInputV1 struct {
	V               int    `json:"v"`
	Domain          string `json:"domain"`
	Provider        string `json:"provider"`
	HandlerID       string `json:"handler_id"`
	Tenant          string `json:"tenant"`
	Team            string `json:"team,omitempty"`
	OccurredAt      string `json:"occurred_at"`
	IntervalSeconds int64  `json:"interval_seconds"`
	LastRun         string `json:"last_run,omitempty"`
}

// EventFlowInputV1 is the input handed to an application pack's default flow
// when routed events arrive.
type EventFlowInputV1 struct {
	Event         *EventEnvelope  `json:"event,omitempty"`
	Events        []EventEnvelope `json:"events"`
	Tenant        string          `json:"tenant"`
	Team          string          `json:"team,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// DLQError is the structured failure recorded alongside a dead-lettered job.
type DLQError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	BackoffMS int64  `json:"backoff_ms,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// DLQRecordV1 is one line of the dead-letter JSONL log.
type DLQRecordV1 struct {
	TS             string   `json:"ts"`
	JobID          string   `json:"job_id"`
	Provider       string   `json:"provider"`
	Tenant         string   `json:"tenant"`
	Team           string   `json:"team,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	CorrelationID  string   `json:"correlation_id,omitempty"`
	Attempt        int      `json:"attempt"`
	MaxAttempts    int      `json:"max_attempts"`
	Error          DLQError `json:"error"`
	MessageSummary any      `json:"message_summary"`
}
