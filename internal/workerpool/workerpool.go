// Package workerpool implements the generic fixed-size worker pool (spec
// component C2): a set of long-lived workers consuming closures from a
// channel, each reporting a stable name and its OS thread id for the
// observability surface required by §4.2/§4.8.
package workerpool

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// State is a worker's current activity.
type State string

const (
	Idle State = "idle"
	Busy State = "busy"
)

// WorkerInfo is the observability snapshot of a single worker.
type WorkerInfo struct {
	Name     string `json:"name"`
	ThreadID int    `json:"thread_id"`
	State    State  `json:"state"`
}

// Snapshot is the pool-wide observability snapshot: every worker plus the
// pool-level totals.
type Snapshot struct {
	Total   int          `json:"total"`
	Active  int          `json:"active"`
	Workers []WorkerInfo `json:"workers"`
}

// message is the unit of work sent to a worker: either run a closure or
// shut down.
type message struct {
	run      func()
	shutdown bool
}

// Pool is a fixed-size set of worker goroutines, each locked to its own OS
// thread so its reported thread id is stable and meaningful.
type Pool struct {
	name string
	ch   chan message
	wg   sync.WaitGroup

	mu      sync.RWMutex
	workers []*workerState

	active int64
}

type workerState struct {
	name     string
	threadID int32
	busy     int32
}

// New creates a pool named name with n long-lived workers. The work
// channel is unbuffered: Execute blocks until a worker is free to take
// the closure, so no backlog is held inside the pool and callers wait
// while every worker is busy.
func New(name string, n int) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{
		name:    name,
		ch:      make(chan message),
		workers: make([]*workerState, n),
	}
	for i := 0; i < n; i++ {
		ws := &workerState{name: name + "-worker-" + strconv.Itoa(i), threadID: -1}
		p.workers[i] = ws
		p.wg.Add(1)
		go p.runWorker(ws)
	}
	return p
}

func (p *Pool) runWorker(ws *workerState) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	atomic.StoreInt32(&ws.threadID, int32(gettid()))

	for msg := range p.ch {
		if msg.shutdown {
			return
		}
		atomic.StoreInt32(&ws.busy, 1)
		atomic.AddInt64(&p.active, 1)
		func() {
			defer func() {
				atomic.StoreInt32(&ws.busy, 0)
				atomic.AddInt64(&p.active, -1)
				_ = recover() // worker survives a panicking closure
			}()
			msg.run()
		}()
	}
}

// gettid returns the calling OS thread's id on Linux, or -1 on platforms
// where golang.org/x/sys/unix doesn't expose one (the worker still runs;
// only the observability field degrades).
func gettid() int {
	if tid, ok := platformGettid(); ok {
		return tid
	}
	return -1
}

// CurrentThreadID exposes gettid to other packages (e.g. internal/executor)
// whose worker goroutines need the same OS thread id observability that
// Pool's own workers report.
func CurrentThreadID() int {
	return gettid()
}

// Execute enqueues fn to run on the next free worker. If the pool has
// already been shut down the closure is dropped; callers needing a result
// must use a completion channel (see internal/endpointpool).
func (p *Pool) Execute(fn func()) (accepted bool) {
	defer func() {
		if recover() != nil {
			accepted = false
		}
	}()
	p.ch <- message{run: fn}
	return true
}

// Snapshot returns the current observability view of the pool.
func (p *Pool) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := Snapshot{Total: len(p.workers)}
	for _, ws := range p.workers {
		st := Idle
		if atomic.LoadInt32(&ws.busy) == 1 {
			st = Busy
			out.Active++
		}
		out.Workers = append(out.Workers, WorkerInfo{
			Name:     ws.name,
			ThreadID: int(atomic.LoadInt32(&ws.threadID)),
			State:    st,
		})
	}
	return out
}

// Close sends one Shutdown per worker, joins every worker goroutine, then
// closes the work channel so later Execute calls report false instead of
// blocking. Close must be called at most once.
func (p *Pool) Close() {
	for range p.workers {
		p.ch <- message{shutdown: true}
	}
	p.wg.Wait()
	close(p.ch)
}
