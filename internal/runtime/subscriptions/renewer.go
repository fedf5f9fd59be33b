package subscriptions

import (
	"context"
	"time"

	"github.com/drblury/packflow/internal/runtime/dlq"
	"github.com/drblury/packflow/internal/runtime/envelope"
	errspkg "github.com/drblury/packflow/internal/runtime/errors"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
	"github.com/drblury/packflow/internal/runtime/retry"
)

// Renewer periodically renews bindings approaching expiration. A binding is
// due once now >= expiration - skew. Retryable failures back off with the
// shared policy; exhausted or non-retryable failures mark the binding failed
// and record it in the subscription dead-letter log, after which only a
// fresh Ensure recovers it.
type Renewer struct {
	service     *Service
	policy      retry.Policy
	skew        time.Duration
	interval    time.Duration
	deadLetters *dlq.Writer
	log         logging.ServiceLogger
	now         func() time.Time

	// onFailed is an optional metrics hook called once per binding marked
	// failed.
	onFailed func(provider string)
}

// RenewerOptions configures a Renewer.
type RenewerOptions struct {
	Service     *Service
	Policy      retry.Policy
	Skew        time.Duration
	Interval    time.Duration
	DeadLetters *dlq.Writer
	Logger      logging.ServiceLogger
	OnFailed    func(provider string)
}

// NewRenewer builds a renewal scheduler. It panics without a subscription
// service since the renewer cannot do anything useful without one.
func NewRenewer(opts RenewerOptions) *Renewer {
	if opts.Service == nil {
		panic(errspkg.ErrServiceRequired)
	}
	if opts.Skew <= 0 {
		opts.Skew = 10 * time.Minute
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Renewer{
		service:     opts.Service,
		policy:      opts.Policy,
		skew:        opts.Skew,
		interval:    opts.Interval,
		deadLetters: opts.DeadLetters,
		log:         opts.Logger,
		now:         time.Now,
		onFailed:    opts.OnFailed,
	}
}

// Run ticks until ctx is cancelled.
func (r *Renewer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.RenewDue(ctx)
		}
	}
}

// RenewDue renews every binding past its due threshold. Exposed for tests
// and for a forced tick on startup.
func (r *Renewer) RenewDue(ctx context.Context) {
	states, err := r.service.List()
	if err != nil {
		r.log.Error("list subscriptions failed", err, nil)
		return
	}

	now := r.now()
	for _, state := range states {
		if !r.due(state, now) {
			continue
		}
		r.renewBinding(ctx, state)
	}
}

func (r *Renewer) due(state *State, now time.Time) bool {
	if state.Failed || state.ExpirationUnixMS <= 0 {
		return false
	}
	if state.NextRunAtUnixMS > 0 && now.UnixMilli() < state.NextRunAtUnixMS {
		return false
	}
	return !now.Before(state.RenewDueAt(r.skew))
}

func (r *Renewer) renewBinding(ctx context.Context, state *State) {
	_, err := r.service.Renew(ctx, state)
	if err == nil {
		return
	}

	opErr := pack.AsOpError(err)
	state.Attempt++
	state.LastError = opErr.Error()

	if !opErr.Retryable || r.policy.Exhausted(state.Attempt) {
		r.markFailed(state, opErr)
		return
	}

	delay := r.policy.Delay(state.Attempt)
	if opErr.BackoffMS > 0 {
		delay = time.Duration(opErr.BackoffMS) * time.Millisecond
	}
	state.NextRunAtUnixMS = r.now().Add(delay).UnixMilli()
	if err := r.service.store.Write(state); err != nil {
		r.log.Error("persist renewal backoff failed", err, logging.LogFields{
			"binding_id": state.BindingID,
		})
	}
	r.log.Warn("subscription renew failed, will retry", logging.LogFields{
		"binding_id": state.BindingID,
		"provider":   state.Provider,
		"attempt":    state.Attempt,
		"delay_ms":   delay.Milliseconds(),
		"error":      opErr.Error(),
	})
}

func (r *Renewer) markFailed(state *State, opErr *pack.OpError) {
	state.Failed = true
	state.NextRunAtUnixMS = 0
	if err := r.service.store.Write(state); err != nil {
		r.log.Error("persist failed subscription state", err, logging.LogFields{
			"binding_id": state.BindingID,
		})
	}

	record := envelope.DLQRecordV1{
		JobID:       state.BindingID,
		Provider:    state.Provider,
		Tenant:      state.Tenant,
		Team:        state.Team,
		Attempt:     state.Attempt,
		MaxAttempts: r.policy.MaxAttempts,
		Error: envelope.DLQError{
			Code:      opErr.Code,
			Message:   opErr.Message,
			Retryable: opErr.Retryable,
			BackoffMS: opErr.BackoffMS,
		},
		MessageSummary: map[string]any{
			"binding_id":      state.BindingID,
			"resource":        state.Resource,
			"subscription_id": state.SubscriptionID,
		},
	}
	if err := r.deadLetters.Append(record); err != nil {
		r.log.Error("subscription dead-letter append failed", err, logging.LogFields{
			"binding_id": state.BindingID,
		})
	}

	r.log.Error("subscription renewal exhausted, binding marked failed", opErr, logging.LogFields{
		"binding_id": state.BindingID,
		"provider":   state.Provider,
		"attempt":    state.Attempt,
	})
	if r.onFailed != nil {
		r.onFailed(state.Provider)
	}
}
