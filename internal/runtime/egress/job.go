// Package egress drives outbound canonical messages through the
// render, encode, and send pack operations with bounded retries. Jobs are
// held only in memory; terminal failures are recorded in the dead-letter log.
package egress

import (
	"sync"
	"time"

	"github.com/drblury/packflow/internal/runtime/envelope"
	"github.com/drblury/packflow/internal/runtime/ids"
)

// Stage is the lifecycle position of an egress job.
type Stage string

const (
	StagePending      Stage = "pending"
	StageRendering    Stage = "rendering"
	StageEncoding     Stage = "encoding"
	StageSending      Stage = "sending"
	StageDelivered    Stage = "delivered"
	StageRetrying     Stage = "retrying"
	StageDeadLettered Stage = "dead_lettered"
)

// Job is one outbound delivery in flight. At most one attempt runs a job at
// a time, but the status API snapshots jobs mid-attempt, so the fields an
// attempt mutates are guarded by mu.
type Job struct {
	ID          string
	Provider    string
	Scope       envelope.TenantScope
	Message     envelope.CanonicalMessage
	MaxAttempts int
	// Plan is only touched by the attempt goroutine and never snapshotted.
	Plan any

	mu        sync.Mutex
	Stage     Stage
	Attempt   int
	NextRunAt time.Time
	LastError string
}

func newJob(provider string, scope envelope.TenantScope, msg envelope.CanonicalMessage, maxAttempts int, now time.Time) *Job {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Job{
		ID:          ids.CreateULID(),
		Provider:    provider,
		Scope:       scope,
		Message:     msg,
		Stage:       StagePending,
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
	}
}

// View is a read-only snapshot of a job for the status API.
type View struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	Tenant      string    `json:"tenant"`
	Team        string    `json:"team,omitempty"`
	Stage       Stage     `json:"stage"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	NextRunAt   time.Time `json:"next_run_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// setStage publishes a stage transition so concurrent snapshots see it.
func (j *Job) setStage(stage Stage) {
	j.mu.Lock()
	j.Stage = stage
	j.mu.Unlock()
}

// beginAttempt bumps the attempt counter and returns its new value.
func (j *Job) beginAttempt() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Attempt++
	return j.Attempt
}

// scheduleRetry records the failure and the next due time in one step.
func (j *Job) scheduleRetry(at time.Time, lastError string) {
	j.mu.Lock()
	j.Stage = StageRetrying
	j.NextRunAt = at
	j.LastError = lastError
	j.mu.Unlock()
}

func (j *Job) view() View {
	j.mu.Lock()
	defer j.mu.Unlock()
	return View{
		ID:          j.ID,
		Provider:    j.Provider,
		Tenant:      j.Scope.Tenant,
		Team:        j.Scope.Team,
		Stage:       j.Stage,
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
		NextRunAt:   j.NextRunAt,
		LastError:   j.LastError,
	}
}
