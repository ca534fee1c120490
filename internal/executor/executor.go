// Package executor implements the CPU/IO executor pools (spec component
// C5): each pool runs N long-lived workers pulling jobs off a shared
// priority queue, dispatching through the task table, and driving the
// job through its terminal state transition and persistence.
package executor

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"taskstation/internal/jobtypes"
	"taskstation/internal/metrics"
	"taskstation/internal/persistence"
	"taskstation/internal/queue"
	"taskstation/internal/tasks"
	"taskstation/internal/workerpool"
)

type workerState struct {
	name     string
	threadID int32
	busy     int32
}

// Pool is the worker loop described in spec §4.4, wired to a priority
// queue, the metrics aggregator, and the persistence log. It implements
// workerpool.Snapshotter so it can register into the same process-wide
// pool registry as generic per-endpoint pools.
type Pool struct {
	name    string
	queue   *queue.Queue
	reg     *metrics.Registry
	log     *persistence.Log
	onError func(err error)

	workers []*workerState
	wg      sync.WaitGroup
}

// New creates a pool named name (conventionally "cpu" or "io") with n
// workers draining q. onError, if non-nil, is called when persistence
// fails; persistence failure never aborts a job's state transition
// (§4.3 note 5).
func New(name string, n int, q *queue.Queue, reg *metrics.Registry, log *persistence.Log, onError func(error)) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{
		name:    name,
		queue:   q,
		reg:     reg,
		log:     log,
		onError: onError,
		workers: make([]*workerState, n),
	}
	reg.SetWorkerTotal(name, n)
	for i := 0; i < n; i++ {
		ws := &workerState{name: fmt.Sprintf("%s-worker-%d", name, i), threadID: -1}
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
	atomic.StoreInt32(&ws.threadID, int32(workerpool.CurrentThreadID()))

	for {
		item, ok := p.queue.BlockingDequeue()
		if !ok {
			return
		}
		high, normal, low := p.queue.Lengths()
		p.reg.SetQueueLengths(p.name, high, normal, low)

		job, ok := item.(*jobtypes.Job)
		if !ok {
			continue
		}
		p.process(ws, job)
	}
}

func (p *Pool) process(ws *workerState, job *jobtypes.Job) {
	if job.Status() == jobtypes.Canceled {
		return // cancel-while-queued, §4.4
	}

	atomic.StoreInt32(&ws.busy, 1)
	defer atomic.StoreInt32(&ws.busy, 0)

	p.reg.EnterBusy(p.name)
	defer p.reg.LeaveBusy(p.name)

	wait := time.Since(job.CreatedAt)
	p.reg.RecordWait(p.name, wait)

	now := time.Now()
	job.MarkStarted(now)
	job.SetStatus(jobtypes.Running)

	execStart := time.Now()
	resultJSON, callErr := runTask(job.Task, job.Params)
	exec := time.Since(execStart)
	p.reg.RecordExec(p.name, exec)

	job.MarkFinished(time.Now())
	ok := callErr == nil
	msg := ""
	if callErr != nil {
		msg = callErr.Error()
	}
	status := jobtypes.TerminalFrom(ok, msg, job.IsExpired())
	job.SetStatus(status)
	if ok {
		job.SetResult(resultJSON)
	}

	if err := p.log.Save(persistence.RecordFromJob(job)); err != nil && p.onError != nil {
		p.onError(err)
	}
}

// runTask looks up and calls the task function, converting a panic into
// an Error result per §4.4's catch_panic.
func runTask(name string, params map[string]string) (result string, err error) {
	fn, lookupErr := tasks.Lookup(name)
	if lookupErr != nil {
		return "", lookupErr
	}
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = fmt.Errorf("panic")
		}
	}()
	return fn(params)
}

// Snapshot implements workerpool.Snapshotter.
func (p *Pool) Snapshot() workerpool.Snapshot {
	out := workerpool.Snapshot{Total: len(p.workers)}
	for _, ws := range p.workers {
		st := workerpool.Idle
		if atomic.LoadInt32(&ws.busy) == 1 {
			st = workerpool.Busy
			out.Active++
		}
		out.Workers = append(out.Workers, workerpool.WorkerInfo{
			Name:     ws.name,
			ThreadID: int(atomic.LoadInt32(&ws.threadID)),
			State:    st,
		})
	}
	return out
}

// Close closes the underlying queue (which wakes every blocked worker)
// and joins all worker goroutines.
func (p *Pool) Close() {
	p.queue.Close()
	p.wg.Wait()
}
