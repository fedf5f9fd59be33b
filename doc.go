// Package packflow is the runtime core of a local orchestrator for
// integration packs. Packs are external programs that speak a small JSON
// contract; packflow hosts them behind a single HTTP ingress listener,
// routes the events they emit over a Watermill bus, delivers outbound
// messages through a render, encode, send pipeline with retries and a
// dead-letter log, keeps webhook subscriptions alive, and fires declared
// timers.
//
// The runtime never interprets provider payloads. It moves opaque JSON
// between packs and enforces the operational semantics around those moves:
// tenant scoping, correlation IDs, bounded retries with exponential backoff,
// durable dead-letter records, and subscription renewal ahead of expiry.
//
// # Transports
//
// The event bus transport is chosen by Config.EventBus:
//   - channel: in-memory Go channels, the default for a single process
//   - nats: core NATS for fan-out without durability
//   - nats-jetstream: durable consumers with redelivery and delay support
//
// Additional transports can be registered through the transport package.
//
// # Middleware
//
// The default middleware chain applied to the event router includes
// correlation ID injection, structured logging, OpenTelemetry tracing,
// Prometheus metrics, retry driven by pack-reported retryability, poison
// topic forwarding for terminal failures, and panic recovery. Custom
// middleware can be added via ServiceDependencies.Middlewares.
//
// # Job Hooks
//
// JobHooksMiddleware provides OnJobStart, OnJobDone, and OnJobError
// callbacks for custom logging, metrics collection, and alerting around
// event dispatch.
//
// A minimal setup fills Config, implements pack.Runtime for the installed
// packs, creates a Service with NewService, and calls Start. The examples
// directory shows a complete single-process wiring.
package packflow
