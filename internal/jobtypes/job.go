// Package jobtypes defines the Job record (spec component C3): its
// identity, immutable submission fields, and the mutable status/result
// fields that are updated as the job moves through the queue and
// executor. Per-field locking follows the lock hierarchy registry →
// per-job field: callers never hold two job-field locks simultaneously.
package jobtypes

import (
	"sync"
	"time"

	"taskstation/internal/queue"
)

// Priority reuses internal/queue's band type directly: a Job's priority
// is exactly the band it will occupy in the priority queue, so there is
// no separate domain to keep in sync.
type Priority = queue.Priority

const (
	Low    = queue.Low
	Normal = queue.Normal
	High   = queue.High
)

// Status is a job's place in the state machine of §4.4.
type Status string

const (
	Queued   Status = "Queued"
	Running  Status = "Running"
	Done     Status = "Done"
	Canceled Status = "Canceled"
	Timeout  Status = "Timeout"
	// Error statuses carry a message; ErrorStatus builds the display form
	// "Error: <msg>" used on the wire (§6.2) and IsError recognizes it.
)

// ErrorStatus renders the Error(msg) terminal state for status and
// persistence fields.
func ErrorStatus(msg string) Status {
	return Status("Error: " + msg)
}

// IsError reports whether s is an Error(msg) status.
func IsError(s Status) bool {
	return len(s) >= 6 && s[:6] == "Error:"
}

// IsTerminal reports whether s is a terminal status; no further
// transitions are valid from a terminal status.
func IsTerminal(s Status) bool {
	switch s {
	case Done, Canceled, Timeout:
		return true
	default:
		return IsError(s)
	}
}

// Job is the unit of work tracked by the registry. ID, Task, Params and
// Priority are set once at construction and never mutated. Status,
// StartedAt, FinishedAt, Result and CancelFlag are mutated under their
// own individual mutexes, never two at once (lock hierarchy: registry →
// per-job field).
type Job struct {
	ID       string
	Task     string
	Params   map[string]string
	Priority Priority
	Timeout  time.Duration

	CreatedAt time.Time

	statusMu sync.Mutex
	status   Status

	startedMu sync.Mutex
	startedAt *time.Time

	finishedMu sync.Mutex
	finishedAt *time.Time

	resultMu sync.Mutex
	result   string

	cancelMu sync.Mutex
	cancel   bool
}

// New constructs a Job in the Queued state.
func New(id, task string, params map[string]string, priority Priority, timeout time.Duration) *Job {
	return &Job{
		ID:        id,
		Task:      task,
		Params:    params,
		Priority:  priority,
		Timeout:   timeout,
		CreatedAt: time.Now(),
		status:    Queued,
	}
}

func (j *Job) Status() Status {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()
	return j.status
}

func (j *Job) SetStatus(s Status) {
	j.statusMu.Lock()
	j.status = s
	j.statusMu.Unlock()
}

// CASQueuedToCanceled sets status to Canceled only if it is currently
// Queued, returning whether the transition happened. This backs cancel's
// pre-dequeue-only semantics (§4.6) atomically.
func (j *Job) CASQueuedToCanceled() bool {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()
	if j.status != Queued {
		return false
	}
	j.status = Canceled
	return true
}

func (j *Job) StartedAt() *time.Time {
	j.startedMu.Lock()
	defer j.startedMu.Unlock()
	return j.startedAt
}

func (j *Job) MarkStarted(t time.Time) {
	j.startedMu.Lock()
	j.startedAt = &t
	j.startedMu.Unlock()
}

func (j *Job) FinishedAt() *time.Time {
	j.finishedMu.Lock()
	defer j.finishedMu.Unlock()
	return j.finishedAt
}

func (j *Job) MarkFinished(t time.Time) {
	j.finishedMu.Lock()
	j.finishedAt = &t
	j.finishedMu.Unlock()
}

func (j *Job) Result() string {
	j.resultMu.Lock()
	defer j.resultMu.Unlock()
	return j.result
}

func (j *Job) SetResult(r string) {
	j.resultMu.Lock()
	j.result = r
	j.resultMu.Unlock()
}

func (j *Job) CancelFlag() bool {
	j.cancelMu.Lock()
	defer j.cancelMu.Unlock()
	return j.cancel
}

func (j *Job) SetCancelFlag(v bool) {
	j.cancelMu.Lock()
	j.cancel = v
	j.cancelMu.Unlock()
}

// IsExpired reports whether elapsed time since creation exceeds the
// job's configured timeout.
func (j *Job) IsExpired() bool {
	return time.Since(j.CreatedAt) > j.Timeout
}

// TerminalFrom implements §4.4's terminal_from: the status a job should
// land in given a task outcome and whether it is already expired.
func TerminalFrom(ok bool, errMsg string, expired bool) Status {
	if !ok {
		return ErrorStatus(errMsg)
	}
	if expired {
		return Timeout
	}
	return Done
}
