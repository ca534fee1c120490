package besteffort

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskstation/internal/jobtypes"
)

// fakeCompleter is an in-memory Completer double for exercising the
// runner's decision tree without a real job manager.
type fakeCompleter struct {
	mu           sync.Mutex
	nextID       int
	queueFull    bool
	terminalCalls []terminalCall
	jobs         map[string]*jobtypes.Job
}

type terminalCall struct {
	id      string
	ok      bool
	payload string
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{jobs: make(map[string]*jobtypes.Job)}
}

func (f *fakeCompleter) RegisterInflight(task string, params map[string]string, priority jobtypes.Priority) (*jobtypes.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueFull {
		return nil, &queueFullErr{retryAfterMS: 1500}
	}
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	job := jobtypes.New(id, task, params, priority, time.Minute)
	job.SetStatus(jobtypes.Running)
	f.jobs[id] = job
	return job, nil
}

func (f *fakeCompleter) MarkTerminal(id string, ok bool, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminalCalls = append(f.terminalCalls, terminalCall{id, ok, payload})
	if job, found := f.jobs[id]; found {
		if ok {
			job.SetResult(payload)
			job.SetStatus(jobtypes.Done)
		} else {
			job.SetStatus(jobtypes.ErrorStatus(payload))
		}
	}
}

func (f *fakeCompleter) calls() []terminalCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]terminalCall(nil), f.terminalCalls...)
}

type queueFullErr struct{ retryAfterMS int64 }

func (e *queueFullErr) Error() string              { return "queue full" }
func (e *queueFullErr) RetryAfterMillis() int64     { return e.retryAfterMS }

func TestExecuteCompletesWithinDeadline(t *testing.T) {
	mgr := newFakeCompleter()
	out := Execute(mgr, "isprime", nil, jobtypes.Normal, 100*time.Millisecond, func() (string, error) {
		return `{"is_prime":true}`, nil
	})
	require.Equal(t, Completed, out.Kind)
	require.Equal(t, `{"is_prime":true}`, out.JSON)
	require.Empty(t, mgr.calls())
}

func TestExecuteHandlerFailureWithinDeadline(t *testing.T) {
	mgr := newFakeCompleter()
	out := Execute(mgr, "isprime", nil, jobtypes.Normal, 100*time.Millisecond, func() (string, error) {
		return "", fmt.Errorf("bad input")
	})
	require.Equal(t, HandlerFailed, out.Kind)
	require.Equal(t, "bad input", out.Err)
}

func TestExecuteOffloadsOnTimeoutThenMarksTerminal(t *testing.T) {
	mgr := newFakeCompleter()
	release := make(chan struct{})
	out := Execute(mgr, "pi", map[string]string{"digits": "4000"}, jobtypes.Normal, 20*time.Millisecond, func() (string, error) {
		<-release
		return `{"pi":"3.14"}`, nil
	})
	require.Equal(t, Offloaded, out.Kind)
	require.NotEmpty(t, out.JobID)

	close(release)
	require.Eventually(t, func() bool {
		return len(mgr.calls()) == 1
	}, time.Second, 5*time.Millisecond)

	calls := mgr.calls()
	require.Equal(t, out.JobID, calls[0].id)
	require.True(t, calls[0].ok)
	require.Equal(t, `{"pi":"3.14"}`, calls[0].payload)
}

func TestExecuteQueueFullOnTimeoutPropagates(t *testing.T) {
	mgr := newFakeCompleter()
	mgr.queueFull = true
	release := make(chan struct{})
	defer close(release)

	out := Execute(mgr, "pi", nil, jobtypes.Normal, 10*time.Millisecond, func() (string, error) {
		<-release
		return "", nil
	})
	require.Equal(t, QueueFull, out.Kind)
	require.Equal(t, int64(1500), out.RetryAfterMS)
}

func TestExecutePanicIsTreatedAsHandlerFailure(t *testing.T) {
	mgr := newFakeCompleter()
	out := Execute(mgr, "isprime", nil, jobtypes.Normal, 100*time.Millisecond, func() (string, error) {
		panic("boom")
	})
	require.Equal(t, HandlerFailed, out.Kind)
	require.Equal(t, "panic", out.Err)
}
