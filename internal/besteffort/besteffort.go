// Package besteffort implements the best-effort runner (spec component
// C7): run a handler closure with a deadline, returning inline if it
// finishes in time, or registering the in-flight work as a job and
// handing back a deferred id if it doesn't.
package besteffort

import (
	"errors"
	"sync"
	"time"

	"taskstation/internal/jobtypes"
)

// Completer is the subset of the job manager the runner needs: enough
// to register in-flight work and later record its outcome. Depending on
// an interface rather than *jobmanager.Manager breaks the otherwise
// cyclic dependency between the job manager and the runner package
// (§9's construction-order cycle resolved as a Go interface back
// reference rather than unsafe pointer patching).
type Completer interface {
	RegisterInflight(task string, params map[string]string, priority jobtypes.Priority) (*jobtypes.Job, error)
	MarkTerminal(id string, ok bool, payload string)
}

// Kind is the tag of an Outcome.
type Kind string

const (
	Completed     Kind = "completed"
	Offloaded     Kind = "offloaded"
	HandlerFailed Kind = "handler_failed"
	QueueFull     Kind = "queue_full"
	Internal      Kind = "internal"
)

// Outcome is exactly one of {Completed, Offloaded, HandlerFailed,
// QueueFull, Internal} per §4.5's contract.
type Outcome struct {
	Kind         Kind
	JSON         string // set for Completed
	JobID        string // set for Offloaded
	Err          string // set for HandlerFailed
	RetryAfterMS int64  // set for QueueFull
}

// slot is the mutex-guarded rendezvous between the foreground caller and
// the spawned goroutine computing the closure. Whichever side reaches a
// decision first — the foreground's deadline firing, or the background
// finishing the computation — settles the slot while holding the lock;
// the other side observes that settlement and acts accordingly. This is
// the crux behavior of §4.5: a result that arrives after the foreground
// has already given up on the channel still lands as a terminal job via
// manager.MarkTerminal rather than being silently lost.
type slot struct {
	mu   sync.Mutex
	done chan struct{}

	json string
	err  error

	offloaded bool
	jobID     string
}

// Execute runs fn with the given deadline. On success within the
// deadline it returns Completed inline. On handler error within the
// deadline it returns HandlerFailed. On timeout it registers the
// in-flight work with mgr and returns Offloaded; the spawned goroutine
// keeps running fn to completion and reports the outcome to mgr
// directly once it finishes.
func Execute(mgr Completer, task string, params map[string]string, priority jobtypes.Priority, deadline time.Duration, fn func() (string, error)) Outcome {
	s := &slot{done: make(chan struct{})}

	go func() {
		json, err := safeCall(fn)

		s.mu.Lock()
		if s.offloaded {
			jobID := s.jobID
			s.mu.Unlock()
			mgr.MarkTerminal(jobID, err == nil, pick(json, err))
			return
		}
		s.json, s.err = json, err
		close(s.done)
		s.mu.Unlock()
	}()

	select {
	case <-s.done:
		s.mu.Lock()
		json, err := s.json, s.err
		s.mu.Unlock()
		if err != nil {
			return Outcome{Kind: HandlerFailed, Err: err.Error()}
		}
		return Outcome{Kind: Completed, JSON: json}

	case <-time.After(deadline):
		s.mu.Lock()
		// The background goroutine may have settled the slot in the
		// instant between the timer firing and this lock acquisition;
		// prefer its real result over declaring an offload.
		select {
		case <-s.done:
			json, err := s.json, s.err
			s.mu.Unlock()
			if err != nil {
				return Outcome{Kind: HandlerFailed, Err: err.Error()}
			}
			return Outcome{Kind: Completed, JSON: json}
		default:
		}

		job, regErr := mgr.RegisterInflight(task, params, priority)
		if regErr != nil {
			s.mu.Unlock()
			if qf, ok := asQueueFull(regErr); ok {
				return Outcome{Kind: QueueFull, RetryAfterMS: qf}
			}
			return Outcome{Kind: Internal}
		}
		s.offloaded = true
		s.jobID = job.ID
		s.mu.Unlock()
		return Outcome{Kind: Offloaded, JobID: job.ID}
	}
}

func pick(json string, err error) string {
	if err != nil {
		return err.Error()
	}
	return json
}

// safeCall converts a panicking closure into an error result, matching
// the executor pool's catch_panic behavior (§4.4) so best-effort and
// queued execution fail the same way.
func safeCall(fn func() (string, error)) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = "", errPanic{}
		}
	}()
	return fn()
}

type errPanic struct{}

func (errPanic) Error() string { return "panic" }

// retryAfter is implemented by jobmanager.ErrQueueFull. Execute only
// type-asserts against this small interface (rather than importing
// jobmanager's concrete type) so Completer stays the one coupling point
// between this package and the job manager.
type retryAfter interface {
	RetryAfterMillis() int64
}

// asQueueFull extracts the retry hint from a RegisterInflight error.
// RegisterInflight's only failure mode is admission control (§4.3/§6.4),
// so any error here is surfaced as QueueFull.
func asQueueFull(err error) (int64, bool) {
	var ra retryAfter
	if errors.As(err, &ra) {
		return ra.RetryAfterMillis(), true
	}
	return 1000, true
}
