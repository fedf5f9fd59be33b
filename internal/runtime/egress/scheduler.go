package egress

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/drblury/packflow/internal/runtime/dlq"
	"github.com/drblury/packflow/internal/runtime/envelope"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
	"github.com/drblury/packflow/internal/runtime/retry"
)

// dueEntry is one (job id, due time) pair in the scheduler index. The index
// never holds job pointers; bodies live in the jobs map keyed by id.
type dueEntry struct {
	jobID string
	at    time.Time
}

type dueIndex []dueEntry

func (q dueIndex) Len() int           { return len(q) }
func (q dueIndex) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q dueIndex) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *dueIndex) Push(x any)        { *q = append(*q, x.(dueEntry)) }
func (q *dueIndex) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}

// Scheduler owns all pending and retrying egress jobs. A periodic tick pops
// due jobs and runs one pipeline attempt per job in its own goroutine; a job
// re-enters the index only after its attempt finished, so at most one attempt
// runs per job. Status snapshots read jobs mid-attempt through each job's own
// lock.
type Scheduler struct {
	pipeline    *Pipeline
	policy      retry.Policy
	deadLetters *dlq.Writer
	log         logging.ServiceLogger
	tick        time.Duration
	now         func() time.Time

	mu    sync.Mutex
	jobs  map[string]*Job
	index dueIndex

	inflight sync.WaitGroup

	// onDeadLetter is an optional metrics hook called once per terminal
	// failure.
	onDeadLetter func(provider string)
	// onDelivered is an optional metrics hook called once per delivery.
	onDelivered func(provider string)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Pipeline     *Pipeline
	Policy       retry.Policy
	DeadLetters  *dlq.Writer
	Logger       logging.ServiceLogger
	Tick         time.Duration
	OnDeadLetter func(provider string)
	OnDelivered  func(provider string)
}

// NewScheduler builds an empty scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Scheduler{
		pipeline:     opts.Pipeline,
		policy:       opts.Policy,
		deadLetters:  opts.DeadLetters,
		log:          opts.Logger,
		tick:         opts.Tick,
		now:          time.Now,
		jobs:         make(map[string]*Job),
		onDeadLetter: opts.OnDeadLetter,
		onDelivered:  opts.OnDelivered,
	}
}

// Submit enqueues an outbound message for delivery and returns its job id.
// The job runs on the next tick.
func (s *Scheduler) Submit(provider string, scope envelope.TenantScope, msg envelope.CanonicalMessage) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := newJob(provider, scope, msg, s.policy.MaxAttempts, s.now())
	s.jobs[job.ID] = job
	heap.Push(&s.index, dueEntry{jobID: job.ID, at: job.NextRunAt})

	s.log.Debug("egress job submitted", logging.LogFields{
		"job_id":   job.ID,
		"provider": provider,
		"tenant":   scope.Tenant,
	})
	return job.ID
}

// Run ticks until ctx is cancelled, then waits for in-flight attempts.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.inflight.Wait()
			return nil
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue pops every job whose due time has elapsed and starts one
// attempt per job.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*Job
	for len(s.index) > 0 && !s.index[0].at.After(now) {
		entry := heap.Pop(&s.index).(dueEntry)
		job, ok := s.jobs[entry.jobID]
		if !ok {
			continue
		}
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.inflight.Add(1)
		go func(job *Job) {
			defer s.inflight.Done()
			s.runAttempt(ctx, job)
		}(job)
	}
}

func (s *Scheduler) runAttempt(ctx context.Context, job *Job) {
	attempt := job.beginAttempt()

	opErr := s.pipeline.Attempt(ctx, job)
	if opErr == nil {
		s.finish(job)
		s.log.Info("egress job delivered", logging.LogFields{
			"job_id":   job.ID,
			"provider": job.Provider,
			"attempt":  attempt,
		})
		if s.onDelivered != nil {
			s.onDelivered(job.Provider)
		}
		return
	}

	if !opErr.Retryable || s.policy.Exhausted(attempt) {
		s.deadLetter(job, attempt, opErr)
		return
	}

	delay := s.policy.Delay(attempt)
	if opErr.BackoffMS > 0 {
		delay = time.Duration(opErr.BackoffMS) * time.Millisecond
	}
	next := s.now().Add(delay)
	job.scheduleRetry(next, opErr.Error())

	s.mu.Lock()
	heap.Push(&s.index, dueEntry{jobID: job.ID, at: next})
	s.mu.Unlock()

	s.log.Info("egress job scheduled for retry", logging.LogFields{
		"job_id":   job.ID,
		"provider": job.Provider,
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
		"error":    opErr.Error(),
	})
}

func (s *Scheduler) finish(job *Job) {
	job.setStage(StageDelivered)
	s.mu.Lock()
	delete(s.jobs, job.ID)
	s.mu.Unlock()
}

// deadLetter records the terminal failure and drops the job. A job reaches
// this at most once since a single attempt runs it.
func (s *Scheduler) deadLetter(job *Job, attempt int, opErr *pack.OpError) {
	job.setStage(StageDeadLettered)

	record := envelope.DLQRecordV1{
		JobID:         job.ID,
		Provider:      job.Provider,
		Tenant:        job.Scope.Tenant,
		Team:          job.Scope.Team,
		SessionID:     job.Message.SessionID,
		CorrelationID: job.Message.CorrelationID,
		Attempt:       attempt,
		MaxAttempts:   job.MaxAttempts,
		Error: envelope.DLQError{
			Code:      opErr.Code,
			Message:   opErr.Message,
			Retryable: opErr.Retryable,
			BackoffMS: opErr.BackoffMS,
			Details:   opErr.Details,
		},
		MessageSummary: job.Message.Summary(),
	}
	if err := s.deadLetters.Append(record); err != nil {
		// the DLQ is the last durability guarantee for failed work
		s.log.Error("dead-letter append failed", err, logging.LogFields{
			"job_id":   job.ID,
			"provider": job.Provider,
		})
	}

	s.mu.Lock()
	delete(s.jobs, job.ID)
	s.mu.Unlock()

	s.log.Error("egress job dead-lettered", opErr, logging.LogFields{
		"job_id":   job.ID,
		"provider": job.Provider,
		"attempt":  attempt,
	})
	if s.onDeadLetter != nil {
		s.onDeadLetter(job.Provider)
	}
}

// Jobs returns a stable snapshot of all live jobs for the status API.
func (s *Scheduler) Jobs() []View {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]View, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
