/*
Package runtime provides the core orchestration infrastructure for packflow.

# Architecture Overview

The runtime package wires five loops around one pack runtime and one handler
registry: the HTTP ingress listener, the event bus router, the outbound
delivery scheduler, the subscription renewer, and the timer scheduler. The
bus is Watermill; everything else is plain Go.

# Package Structure

## Core Service (service.go)

The Service struct is the central orchestrator that wires together:
  - Message router (Watermill) with the default middleware chain
  - Publisher and subscriber from the configured transport
  - HTTP ingress listener and status/metrics servers
  - Outbound delivery scheduler with dead-letter logging
  - Subscription renewal and timer scheduling

## Middleware (middleware.go)

The middleware system provides composable dispatch stages:
  - CorrelationID: stamps missing correlation IDs
  - LogMessages: debug logging of routed payloads
  - Tracer: OpenTelemetry spans per dispatch
  - Metrics: Prometheus router metrics and the /metrics endpoint
  - Retry: backoff driven by pack-reported retryability
  - PoisonQueue: terminal failures forwarded to the poison topic
  - Recoverer: panic recovery

## Status API (statusapi.go)

Read-only HTTP endpoints for handlers, subscriptions, pending egress jobs,
and dead-letter records.

# Sub-packages

  - config/: service configuration with validation
  - pack/: the pack invocation contract and structured errors
  - registry/: handler registry built from pack discovery
  - ingress/: the HTTP ingress listener and event emission
  - eventrouter/: event publishing and dispatch to app packs
  - egress/: the render, encode, send pipeline and retry scheduler
  - subscriptions/: subscription state, ensure/delete, and renewal
  - timers/: declared timer scheduling with durable last-run state
  - dlq/: append-only dead-letter logs
  - retry/: shared backoff policy
  - envelope/: canonical message, event, and record shapes
  - errors/: sentinel errors and error types
  - ids/: ULID and binding ID generation
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: message metadata utilities
  - transport/: adapter to the public transport registry
*/
package runtime
