package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	configpkg "github.com/drblury/packflow/internal/runtime/config"
	"github.com/drblury/packflow/internal/runtime/dlq"
	"github.com/drblury/packflow/internal/runtime/egress"
	"github.com/drblury/packflow/internal/runtime/envelope"
	errspkg "github.com/drblury/packflow/internal/runtime/errors"
	"github.com/drblury/packflow/internal/runtime/eventrouter"
	"github.com/drblury/packflow/internal/runtime/ingress"
	loggingpkg "github.com/drblury/packflow/internal/runtime/logging"
	packpkg "github.com/drblury/packflow/internal/runtime/pack"
	registrypkg "github.com/drblury/packflow/internal/runtime/registry"
	"github.com/drblury/packflow/internal/runtime/retry"
	"github.com/drblury/packflow/internal/runtime/subscriptions"
	"github.com/drblury/packflow/internal/runtime/timers"
	transportpkg "github.com/drblury/packflow/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// eventDispatchHandler names the bus handler that routes events to
// application packs.
const eventDispatchHandler = "route_events"

// ServiceDependencies holds the collaborators the Service is wired from.
// Runtime and Discovery are required; the rest have working defaults.
type ServiceDependencies struct {
	// Runtime executes pack operations. Required.
	Runtime packpkg.Runtime

	// Discovery is the pack discovery output the handler registry is built
	// from.
	Discovery packpkg.Discovery

	// Tenant and Team scope the timer scheduler. Tenant defaults to
	// "default".
	Tenant string
	Team   string

	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
}

// Service wires the runtime: the ingress listener, the event bus router, the
// outbound delivery scheduler, the subscription lifecycle, and the timer
// scheduler, all sharing one pack runtime and one handler registry.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	runtime  packpkg.Runtime
	registry *registrypkg.Registry

	events      *eventrouter.Publisher
	eventRouter *eventrouter.Router

	egressDLQ *dlq.Writer
	egress    *egress.Scheduler

	subsDLQ       *dlq.Writer
	subscriptions *subscriptions.Service
	renewer       *subscriptions.Renewer

	timers  *timers.Scheduler
	ingress *ingress.Server

	dlqMetrics *DLQMetrics

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService constructs a fully wired Service for the supplied configuration.
// It panics on invalid configuration or unusable dependencies; a service that
// cannot be wired cannot run.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	if conf == nil {
		panic(errspkg.ErrConfigRequired)
	}
	if log == nil {
		panic(errspkg.ErrLoggerRequired)
	}
	if deps.Runtime == nil {
		panic(errspkg.ErrRuntimeRequired)
	}

	cfg := conf.WithDefaults()
	if err := cfg.Validate(); err != nil {
		panic(errspkg.NewConfigValidationError(err))
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating packflow service",
		loggingpkg.LogFields{
			"event_bus": cfg.EventBus,
			"config":    &cfg,
		})

	s := &Service{
		Conf:    &cfg,
		Logger:  log,
		runtime: deps.Runtime,
	}

	reg, err := registrypkg.Build(deps.Discovery)
	if err != nil {
		panic(err)
	}
	s.registry = reg

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, &cfg, wmLogger)
	if err != nil {
		panic(err)
	}
	s.publisher = transport.Publisher
	s.subscriber = transport.Subscriber

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		panic(err)
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	s.registerConfiguredMiddlewares(deps)

	if cfg.MetricsEnabled {
		s.dlqMetrics = NewDLQMetrics(nil)
		if err := s.dlqMetrics.Register(); err != nil {
			panic(err)
		}
	}

	s.egressDLQ, err = dlq.NewWriter(cfg.DLQPath)
	if err != nil {
		panic(err)
	}
	s.subsDLQ, err = dlq.NewWriter(cfg.SubscriptionDLQPath)
	if err != nil {
		panic(err)
	}

	policy := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
	}

	s.events = eventrouter.NewPublisher(s.publisher, cfg.EventsTopic)
	s.eventRouter = eventrouter.NewRouter(s.registry, s.runtime, log)
	s.router.AddNoPublisherHandler(
		eventDispatchHandler,
		cfg.EventsTopic,
		s.subscriber,
		s.eventRouter.HandleMessage,
	)

	s.egress = egress.NewScheduler(egress.SchedulerOptions{
		Pipeline:    egress.NewPipeline(s.runtime, log),
		Policy:      policy,
		DeadLetters: s.egressDLQ,
		Logger:      log,
		Tick:        cfg.RetryTick,
		OnDeadLetter: func(provider string) {
			if s.dlqMetrics != nil {
				s.dlqMetrics.RecordDeadLetter(QueueEgress, provider)
			}
		},
		OnDelivered: func(provider string) {
			if s.dlqMetrics != nil {
				s.dlqMetrics.RecordDelivered(provider)
			}
		},
	})

	subsStore := subscriptions.NewStore(filepath.Join(cfg.StateDir, "subscriptions"))
	s.subscriptions = subscriptions.NewService(s.runtime, subsStore, log)
	s.renewer = subscriptions.NewRenewer(subscriptions.RenewerOptions{
		Service:     s.subscriptions,
		Policy:      policy,
		Skew:        cfg.RenewSkew,
		Interval:    cfg.RenewInterval,
		DeadLetters: s.subsDLQ,
		Logger:      log,
		OnFailed: func(provider string) {
			if s.dlqMetrics != nil {
				s.dlqMetrics.RecordDeadLetter(QueueSubscriptions, provider)
			}
		},
	})

	tenant := deps.Tenant
	if tenant == "" {
		tenant = "default"
	}
	s.timers = timers.NewScheduler(timers.SchedulerOptions{
		Registry:        s.registry,
		Runtime:         s.runtime,
		Events:          s.events,
		Store:           timers.NewStore(filepath.Join(cfg.StateDir, "timers")),
		Tenant:          tenant,
		Team:            deps.Team,
		DefaultInterval: cfg.TimerDefaultInterval,
		Logger:          log,
	})

	s.ingress = ingress.NewServer(ingress.ServerOptions{
		Addr:          cfg.IngressAddr,
		Domains:       cfg.Domains,
		BodyLimit:     cfg.IngressBodyLimit,
		ShutdownGrace: cfg.ShutdownGrace,
		Registry:      s.registry,
		Runtime:       s.runtime,
		Events:        s.events,
		Logger:        log,
	})

	return s
}

// Start runs every runtime loop until the provided context is cancelled. The
// first loop to fail cancels the rest; the dead-letter logs are closed last
// so late failures are still recorded.
func (s *Service) Start(ctx context.Context) error {
	s.StartStatusAPI()
	s.startHTTPServers()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 5)
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	run("event router", func(ctx context.Context) error { return routerRun(s.router, ctx) })
	run("egress scheduler", s.egress.Run)
	run("subscription renewer", s.renewer.Run)
	run("timer scheduler", s.timers.Run)
	run("ingress", s.ingress.Run)

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if err := s.egressDLQ.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.subsDLQ.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			panic(fmt.Sprintf("failed to register middleware %s: %v", name, err))
		}
	}
}

// Running is closed once the event bus router is up and consuming. Useful
// for callers that publish immediately after Start.
func (s *Service) Running() <-chan struct{} {
	return s.router.Running()
}

// Send enqueues an outbound canonical message for delivery through the named
// provider pack and returns the egress job id.
func (s *Service) Send(provider string, scope envelope.TenantScope, msg envelope.CanonicalMessage) string {
	return s.egress.Submit(provider, scope, msg)
}

// PublishEvents puts event envelopes on the bus for routing.
func (s *Service) PublishEvents(events ...envelope.EventEnvelope) error {
	return s.events.Publish(events...)
}

// Subscriptions exposes the subscription lifecycle operations.
func (s *Service) Subscriptions() *subscriptions.Service {
	return s.subscriptions
}

// Registry exposes the handler registry built from pack discovery.
func (s *Service) Registry() *registrypkg.Registry {
	return s.registry
}

// EgressJobs returns a snapshot of all pending and retrying outbound jobs.
func (s *Service) EgressJobs() []egress.View {
	return s.egress.Jobs()
}

// IngressHandler exposes the ingress HTTP handler for callers that embed it
// in their own listener instead of running the built-in one.
func (s *Service) IngressHandler() http.Handler {
	return s.ingress.Handler()
}

// AddBusHandler registers an extra no-publish handler on the event bus
// router. Call before Start.
func (s *Service) AddBusHandler(name, topic string, handler message.NoPublishHandlerFunc) {
	s.router.AddNoPublisherHandler(name, topic, s.subscriber, handler)
}

// RegisterHTTPHandler mounts an HTTP handler on the shared mux for the given
// port. Servers start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
