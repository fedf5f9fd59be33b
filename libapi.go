package packflow

import (
	runtimepkg "github.com/drblury/packflow/internal/runtime"
	configpkg "github.com/drblury/packflow/internal/runtime/config"
	"github.com/drblury/packflow/internal/runtime/egress"
	"github.com/drblury/packflow/internal/runtime/envelope"
	errspkg "github.com/drblury/packflow/internal/runtime/errors"
	idspkg "github.com/drblury/packflow/internal/runtime/ids"
	jsoncodecpkg "github.com/drblury/packflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/packflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/packflow/internal/runtime/metadata"
	packpkg "github.com/drblury/packflow/internal/runtime/pack"
	registrypkg "github.com/drblury/packflow/internal/runtime/registry"
	retrypkg "github.com/drblury/packflow/internal/runtime/retry"
	subscriptionspkg "github.com/drblury/packflow/internal/runtime/subscriptions"
	transportpkg "github.com/drblury/packflow/internal/runtime/transport"
	bustransport "github.com/drblury/packflow/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Transport           = transportpkg.Transport
	TransportFactory    = transportpkg.Factory

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	// Job lifecycle hooks
	JobContext = runtimepkg.JobContext
	JobHooks   = runtimepkg.JobHooks

	// Dead-letter metrics
	DLQMetrics         = runtimepkg.DLQMetrics
	DLQProviderMetrics = runtimepkg.DLQProviderMetrics
	DLQMetricsSnapshot = runtimepkg.DLQMetricsSnapshot

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError

	// Pack contract types
	Call         = packpkg.Call
	Runtime      = packpkg.Runtime
	OpError      = packpkg.OpError
	Discovery    = packpkg.Discovery
	ProviderPack = packpkg.ProviderPack
	AppPack      = packpkg.AppPack
	HTTPHandler  = packpkg.HTTPHandler
	TimerHandler = packpkg.TimerHandler

	// Envelope and record types
	TenantScope      = envelope.TenantScope
	CanonicalMessage = envelope.CanonicalMessage
	EventEnvelope    = envelope.EventEnvelope
	EventScope       = envelope.EventScope
	EventSource      = envelope.EventSource
	Destination      = envelope.Destination
	Actor            = envelope.Actor
	Attachment       = envelope.Attachment
	DLQRecordV1      = envelope.DLQRecordV1

	// Handler registry
	Registry            = registrypkg.Registry
	HandlerRegistration = registrypkg.Registration

	// Outbound delivery
	EgressJobView = egress.View
	RetryPolicy   = retrypkg.Policy

	// Subscription lifecycle
	SubscriptionEnsureRequest = subscriptionspkg.EnsureRequest
	SubscriptionState         = subscriptionspkg.State

	// Modular transport types
	TransportBuilder      = bustransport.Builder
	TransportConfig       = bustransport.Config
	TransportRegistry     = bustransport.Registry
	TransportCapabilities = bustransport.Capabilities
	TransportDelayedPub   = bustransport.DelayedPublisher
)

// Pack operation names.
const (
	OpIngestHTTP         = packpkg.OpIngestHTTP
	OpRenderPlan         = packpkg.OpRenderPlan
	OpEncode             = packpkg.OpEncode
	OpSendPayload        = packpkg.OpSendPayload
	OpSubscriptionEnsure = packpkg.OpSubscriptionEnsure
	OpSubscriptionRenew  = packpkg.OpSubscriptionRenew
	OpSubscriptionDelete = packpkg.OpSubscriptionDelete
)

var (
	NewService = runtimepkg.NewService

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Job lifecycle hooks
	JobHooksMiddleware = runtimepkg.JobHooksMiddleware
	LoggingHooks       = runtimepkg.LoggingHooks
	MetricsHooks       = runtimepkg.MetricsHooks
	AlertingHooks      = runtimepkg.AlertingHooks

	// Dead-letter metrics
	NewDLQMetrics = runtimepkg.NewDLQMetrics

	// Pack error helpers
	AsOpError    = packpkg.AsOpError
	ParseOpError = packpkg.ParseOpError

	// Logging constructors
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter
	NopLogger                 = loggingpkg.Nop

	// ID helpers
	CreateULID   = idspkg.CreateULID
	NewBindingID = idspkg.NewBindingID

	// JSON codec helpers
	MarshalJSON   = jsoncodecpkg.Marshal
	UnmarshalJSON = jsoncodecpkg.Unmarshal

	// Config error helpers
	NewConfigValidationError = errspkg.NewConfigValidationError

	// Transport factory
	DefaultTransportFactory = transportpkg.DefaultFactory

	// Modular transport registry helpers
	RegisterTransport                 = bustransport.Register
	RegisterTransportWithCapabilities = bustransport.RegisterWithCapabilities
	BuildTransport                    = bustransport.Build
	TransportNames                    = bustransport.Names
	HasTransport                      = bustransport.Has
	GetTransportCapabilities          = bustransport.GetCapabilities
)

// Sentinel errors re-exported for callers using the root package only.
var (
	ErrServiceRequired    = errspkg.ErrServiceRequired
	ErrRuntimeRequired    = errspkg.ErrRuntimeRequired
	ErrRegistryRequired   = errspkg.ErrRegistryRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrProviderRequired   = errspkg.ErrProviderRequired
	ErrBindingIDRequired  = errspkg.ErrBindingIDRequired
	ErrResourceRequired   = errspkg.ErrResourceRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrStoreDirRequired   = errspkg.ErrStoreDirRequired
	ErrSubscriptionFailed = errspkg.ErrSubscriptionFailed
)
