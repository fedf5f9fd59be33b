// Package pack defines the contract between the runtime core and the
// sandboxed pack execution engine, plus the discovery metadata the handler
// registry is built from. The core never interprets pack payloads; every
// interaction is an operation name and opaque bytes.
package pack

import "context"

// Operation names the core invokes on provider packs.
const (
	OpIngestHTTP         = "ingest_http"
	OpRenderPlan         = "render_plan"
	OpEncode             = "encode"
	OpSendPayload        = "send_payload"
	OpSubscriptionEnsure = "subscription_ensure"
	OpSubscriptionRenew  = "subscription_renew"
	OpSubscriptionDelete = "subscription_delete"
)

// Call identifies one pack operation invocation.
type Call struct {
	Domain        string
	Provider      string
	Op            string
	Tenant        string
	Team          string
	CorrelationID string
	Input         []byte
}

// Runtime executes pack operations. Implementations are expected to be safe
// for concurrent use; the core invokes them from multiple loops at once.
// Failures should be returned as *OpError so retry semantics survive the
// boundary; any other error is treated as terminal.
type Runtime interface {
	Invoke(ctx context.Context, call Call) ([]byte, error)
}

// HandlerKind distinguishes the two handler flavors a pack may declare.
type HandlerKind string

const (
	KindHTTP  HandlerKind = "http"
	KindTimer HandlerKind = "timer"
)

// HTTPHandler is a webhook-style handler declared by a provider pack.
type HTTPHandler struct {
	HandlerID string
	Op        string
}

// TimerHandler is a periodically-invoked handler declared by a provider pack.
type TimerHandler struct {
	HandlerID       string
	Op              string
	IntervalSeconds int64
}

// ProviderPack is one discovered provider plugin with its declared handlers.
type ProviderPack struct {
	Name          string
	Domain        string
	Path          string
	HTTPHandlers  []HTTPHandler
	TimerHandlers []TimerHandler
}

// AppPack is a discovered application pack that can receive routed events.
// Tenant and Team scope where it acts as the default destination: both empty
// means the root-level default, Team empty means the tenant-level default.
type AppPack struct {
	PackID  string
	Path    string
	Tenant  string
	Team    string
	EntryOp string
}

// Discovery is the output of pack discovery consumed at registry build time.
type Discovery struct {
	Providers []ProviderPack
	Apps      []AppPack
}
