// Package timers runs one independent tick loop per registered timer
// handler, invoking the handler's pack operation and forwarding emitted
// events onto the bus.
package timers

import (
	"context"
	"sync"
	"time"

	"github.com/drblury/packflow/internal/runtime/envelope"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
	"github.com/drblury/packflow/internal/runtime/registry"
)

// EventSink receives events emitted by timer handlers.
type EventSink interface {
	Publish(events ...envelope.EventEnvelope) error
}

// SchedulerOptions configures the timer scheduler.
type SchedulerOptions struct {
	Registry        *registry.Registry
	Runtime         pack.Runtime
	Events          EventSink
	Store           *Store
	Tenant          string
	Team            string
	DefaultInterval time.Duration
	Logger          logging.ServiceLogger
}

// Scheduler drives every timer handler the registry declares.
type Scheduler struct {
	registry        *registry.Registry
	runtime         pack.Runtime
	events          EventSink
	store           *Store
	tenant          string
	team            string
	defaultInterval time.Duration
	log             logging.ServiceLogger
	now             func() time.Time
}

// NewScheduler builds a timer scheduler scoped to one tenant and team.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Scheduler{
		registry:        opts.Registry,
		runtime:         opts.Runtime,
		events:          opts.Events,
		store:           opts.Store,
		tenant:          opts.Tenant,
		team:            opts.Team,
		defaultInterval: opts.DefaultInterval,
		log:             opts.Logger,
		now:             time.Now,
	}
}

// Run starts one tick loop per timer handler and blocks until ctx is
// cancelled and all loops have stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	timers := s.registry.Timers()
	if len(timers) == 0 {
		<-ctx.Done()
		return nil
	}

	s.log.Info("timer scheduler started", logging.LogFields{
		"handlers": len(timers),
		"tenant":   s.tenant,
		"team":     s.team,
	})

	var wg sync.WaitGroup
	for _, reg := range timers {
		wg.Add(1)
		go func(reg registry.Registration) {
			defer wg.Done()
			s.runLoop(ctx, reg)
		}(reg)
	}
	wg.Wait()

	s.log.Info("timer scheduler stopped", nil)
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context, reg registry.Registration) {
	interval := s.defaultInterval
	if reg.IntervalSeconds > 0 {
		interval = time.Duration(reg.IntervalSeconds) * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx, reg); err != nil {
				s.log.Error("timer tick failed", err, logging.LogFields{
					"provider": reg.Key.Provider,
					"handler":  reg.Key.HandlerID,
				})
			}
		}
	}
}

// Tick runs one timer invocation: build the tick input with the persisted
// last_run, invoke the pack op, forward events, then advance the marker.
// Exposed for tests and for a forced first tick.
func (s *Scheduler) Tick(ctx context.Context, reg registry.Registration) error {
	lastRun, err := s.store.LastRun(reg.Key.Provider, s.tenant, s.team, reg.Key.HandlerID)
	if err != nil {
		return err
	}

	occurredAt := s.now().UTC().Format(time.RFC3339)
	input, err := jsoncodec.Marshal(envelope.TimerTickInputV1{
		V:               1,
		Domain:          reg.Key.Domain,
		Provider:        reg.Key.Provider,
		HandlerID:       reg.Key.HandlerID,
		Tenant:          s.tenant,
		Team:            s.team,
		OccurredAt:      occurredAt,
		IntervalSeconds: reg.IntervalSeconds,
		LastRun:         lastRun,
	})
	if err != nil {
		return err
	}

	output, err := s.runtime.Invoke(ctx, pack.Call{
		Domain:   reg.Key.Domain,
		Provider: reg.Key.Provider,
		Op:       reg.Op,
		Tenant:   s.tenant,
		Team:     s.team,
		Input:    input,
	})
	if err != nil {
		return err
	}

	var parsed struct {
		Events any `json:"events"`
	}
	if len(output) > 0 {
		if err := jsoncodec.Unmarshal(output, &parsed); err != nil {
			return err
		}
	}
	events, err := envelope.DecodeEvents(parsed.Events)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		if err := s.events.Publish(events...); err != nil {
			return err
		}
		s.log.Debug("timer events enqueued", logging.LogFields{
			"provider": reg.Key.Provider,
			"handler":  reg.Key.HandlerID,
			"events":   len(events),
		})
	}

	// the marker only advances after a successful tick so a crashed tick is
	// replayed rather than skipped
	return s.store.SetLastRun(reg.Key.Provider, s.tenant, s.team, reg.Key.HandlerID, occurredAt)
}
