// Package jobmanager implements the job manager (spec component C6): it
// owns the priority queues and executor pools for both task classes,
// the in-memory job registry, admission control, and the submit /
// cancel / status / result / register_inflight / mark_terminal surface
// route handlers call through.
package jobmanager

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"taskstation/internal/executor"
	"taskstation/internal/ids"
	"taskstation/internal/jobtypes"
	"taskstation/internal/metrics"
	"taskstation/internal/persistence"
	"taskstation/internal/queue"
	"taskstation/internal/tasks"
)

// Config holds the environment-derived admission and timeout policy
// (spec §6.3).
type Config struct {
	QueueMax   int
	CPUTimeout time.Duration
	IOTimeout  time.Duration
	CPUWorkers int
	IOWorkers  int

	// JobRetention bounds how long a finished job (Done/Error/Timeout)
	// stays in the registry after its finish time before gc sweeps it.
	// Canceled jobs have no finish time and are not swept. Zero disables
	// gc.
	JobRetention time.Duration
}

// ErrQueueFull is returned by Submit/RegisterInflight when the target
// queue (plus in-flight count, for RegisterInflight) is at capacity.
type ErrQueueFull struct {
	RetryAfterMS int64
}

func (e *ErrQueueFull) Error() string { return "queue full" }

// RetryAfterMillis exposes the policy hint for callers (e.g.
// internal/besteffort) that only hold this error as a plain error value.
func (e *ErrQueueFull) RetryAfterMillis() int64 { return e.RetryAfterMS }

// ErrUnknownTask describes a task name that isn't in the classification
// table. Submit never returns it: per §4.3/§6.1, submission accepts
// unknown names; callers that want submission-time rejection use this
// error from a stricter validation layer. The manager itself classifies
// unknown tasks as CPU (documented in DESIGN.md) so admission control
// has somewhere to route them; the real rejection happens at execution
// in internal/tasks.Lookup.
type ErrUnknownTask struct{ Task string }

func (e *ErrUnknownTask) Error() string { return fmt.Sprintf("unknown task '%s'", e.Task) }

// Manager is the job manager. Construct with New.
type Manager struct {
	cfg            Config
	log            *persistence.Log
	reg            *metrics.Registry
	onPersistError func(error)

	cpuQueue *queue.Queue
	ioQueue  *queue.Queue
	cpuPool  *executor.Pool
	ioPool   *executor.Pool

	mu   sync.RWMutex
	jobs map[string]*jobtypes.Job

	cpuInFlight int64
	ioInFlight  int64

	gcStop chan struct{}
}

// New constructs a Manager with fresh queues and executor pools, then
// replays the persistence log to recover prior state (§4.7).
func New(cfg Config, reg *metrics.Registry, log *persistence.Log, onPersistError func(error)) (*Manager, error) {
	m := &Manager{
		cfg:            cfg,
		log:            log,
		reg:            reg,
		onPersistError: onPersistError,
		cpuQueue:       queue.New(cfg.QueueMax),
		ioQueue:        queue.New(cfg.QueueMax),
		jobs:           make(map[string]*jobtypes.Job),
	}
	m.cpuPool = executor.New("cpu", cfg.CPUWorkers, m.cpuQueue, reg, log, onPersistError)
	m.ioPool = executor.New("io", cfg.IOWorkers, m.ioQueue, reg, log, onPersistError)

	if err := m.recover(); err != nil {
		return nil, err
	}

	if cfg.JobRetention > 0 {
		m.gcStop = make(chan struct{})
		go m.gcLoop()
	}
	return m, nil
}

// gcLoop periodically sweeps terminal jobs older than JobRetention out
// of the registry, so a long-lived process doesn't grow its in-memory
// job map without bound.
func (m *Manager) gcLoop() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.gc()
		case <-m.gcStop:
			return
		}
	}
}

func (m *Manager) gc() {
	cut := time.Now().Add(-m.cfg.JobRetention)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, j := range m.jobs {
		if !jobtypes.IsTerminal(j.Status()) {
			continue
		}
		finished := j.FinishedAt()
		if finished != nil && finished.Before(cut) {
			delete(m.jobs, id)
		}
	}
}

func classify(task string) tasks.Class {
	if c, ok := tasks.Classify(task); ok {
		return c
	}
	return tasks.CPU
}

func (m *Manager) queueAndTimeoutFor(class tasks.Class) (*queue.Queue, time.Duration) {
	if class == tasks.IO {
		return m.ioQueue, m.cfg.IOTimeout
	}
	return m.cpuQueue, m.cfg.CPUTimeout
}

func (m *Manager) inFlightCounter(class tasks.Class) *int64 {
	if class == tasks.IO {
		return &m.ioInFlight
	}
	return &m.cpuInFlight
}

// recover replays the persistence log on startup: every record is
// inserted into the registry; Queued and Running jobs are re-enqueued
// (Running is treated as Queued-on-recovery, since there is no
// execution context to resume); everything else is registry-only.
func (m *Manager) recover() error {
	records, err := m.log.Load()
	if err != nil {
		return err
	}
	for _, rec := range records {
		status := persistence.StatusOrQueued(rec.Status)
		timeout := time.Duration(rec.TimeoutSecs) * time.Second
		job := jobtypes.New(rec.ID, rec.Task, rec.Params, queue.ParsePriority(rec.Priority), timeout)
		job.SetResult(rec.Result)
		job.SetCancelFlag(rec.CancelFlag)

		restored := status
		if status == jobtypes.Running {
			restored = jobtypes.Queued
		}
		job.SetStatus(restored)

		m.mu.Lock()
		m.jobs[job.ID] = job
		m.mu.Unlock()

		if restored == jobtypes.Queued {
			class := classify(job.Task)
			q, _ := m.queueAndTimeoutFor(class)
			_ = q.TryEnqueue(job, job.Priority)
			m.reportQueueDepth(class, q)
		}
	}
	return nil
}

// Submit implements §4.3's submit protocol.
func (m *Manager) Submit(task string, params map[string]string, priority jobtypes.Priority) (string, error) {
	class := classify(task)
	q, timeout := m.queueAndTimeoutFor(class)

	if q.Len() >= m.cfg.QueueMax {
		return "", &ErrQueueFull{RetryAfterMS: 1000}
	}

	job := jobtypes.New(ids.NewJobID(), task, params, priority, timeout)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	m.persist(job)

	if err := q.TryEnqueue(job, priority); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		_ = m.log.Delete(job.ID)
		return "", &ErrQueueFull{RetryAfterMS: 1000}
	}
	m.reportQueueDepth(class, q)
	return job.ID, nil
}

// reportQueueDepth mirrors q's current band lengths into the metrics
// registry under class's pool name, keeping taskstation_queue_depth live
// (§4.8) instead of stuck at zero.
func (m *Manager) reportQueueDepth(class tasks.Class, q *queue.Queue) {
	high, normal, low := q.Lengths()
	m.reg.SetQueueLengths(string(class), high, normal, low)
}

// RegisterInflight implements the best-effort runner's admission path
// (§4.5): same admission rule as Submit but skips the enqueue step,
// since the computation is already running on a spawned goroutine. The
// job starts life as Running and is never counted in queue-depth
// metrics.
func (m *Manager) RegisterInflight(task string, params map[string]string, priority jobtypes.Priority) (*jobtypes.Job, error) {
	class := classify(task)
	q, timeout := m.queueAndTimeoutFor(class)
	counter := m.inFlightCounter(class)

	if q.Len()+int(atomic.LoadInt64(counter)) >= m.cfg.QueueMax {
		return nil, &ErrQueueFull{RetryAfterMS: 1000}
	}

	job := jobtypes.New(ids.NewJobID(), task, params, priority, timeout)
	now := time.Now()
	job.MarkStarted(now)
	job.SetStatus(jobtypes.Running)

	atomic.AddInt64(counter, 1)
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	m.persist(job)

	return job, nil
}

// MarkTerminal implements manager.mark_terminal from §4.5/§6.4: sets
// status, result, finished_at and persists, and releases the in-flight
// slot taken by RegisterInflight. Called by the best-effort runner's
// spawned goroutine when its result arrives after the foreground has
// already given up (the "crux" behavior); executor workers finish queued
// jobs themselves and do not call it.
func (m *Manager) MarkTerminal(id string, ok bool, payload string) {
	m.mu.RLock()
	job, found := m.jobs[id]
	m.mu.RUnlock()
	if !found {
		return
	}

	class := classify(job.Task)
	if job.StartedAt() == nil {
		// should already be set by RegisterInflight, but guard anyway
		now := time.Now()
		job.MarkStarted(now)
	}
	job.MarkFinished(time.Now())

	msg := ""
	if !ok {
		msg = payload
	}
	job.SetStatus(jobtypes.TerminalFrom(ok, msg, job.IsExpired()))
	if ok {
		job.SetResult(payload)
	}
	atomic.AddInt64(m.inFlightCounter(class), -1)
	m.persist(job)
}

// Status returns the current status of id, if known.
func (m *Manager) Status(id string) (jobtypes.Status, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	return job.Status(), true
}

// Result returns the stored result payload of id, if known. The result
// may be empty even for a known id if the job hasn't completed with a
// success outcome yet.
func (m *Manager) Result(id string) (string, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	return job.Result(), true
}

// Cancel implements §4.6: only a Queued job can be canceled.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if !job.CASQueuedToCanceled() {
		return false
	}
	job.SetCancelFlag(true)
	m.persist(job)
	return true
}

// JobSummary is the compact per-job view returned by List.
type JobSummary struct {
	ID       string
	Task     string
	Status   jobtypes.Status
	Priority jobtypes.Priority
}

// List returns a summary of every job known to the registry, regardless
// of status. Order is unspecified.
func (m *Manager) List() []JobSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]JobSummary, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, JobSummary{ID: j.ID, Task: j.Task, Status: j.Status(), Priority: j.Priority})
	}
	return out
}

// GetMetrics returns the §4.8 snapshot for every job pool.
func (m *Manager) GetMetrics() map[string]metrics.PoolSnapshot {
	return map[string]metrics.PoolSnapshot{
		"cpu": m.reg.Snapshot("cpu"),
		"io":  m.reg.Snapshot("io"),
	}
}

// QueueLengths exposes both job queues' band lengths, keyed by class,
// for the status surface.
func (m *Manager) QueueLengths() map[string][3]int {
	high, normal, low := m.cpuQueue.Lengths()
	cpu := [3]int{high, normal, low}
	high, normal, low = m.ioQueue.Lengths()
	io := [3]int{high, normal, low}
	return map[string][3]int{"cpu": cpu, "io": io}
}

// CPUPool and IOPool expose the executor pools for registration into
// the process-wide workerpool registry (§4.2's observability surface).
func (m *Manager) CPUPool() *executor.Pool { return m.cpuPool }
func (m *Manager) IOPool() *executor.Pool  { return m.ioPool }

func (m *Manager) persist(job *jobtypes.Job) {
	if err := m.log.Save(persistence.RecordFromJob(job)); err != nil && m.onPersistError != nil {
		m.onPersistError(err)
	}
}

// Close shuts down both executor pools (which closes their queues and
// joins every worker) and stops the retention gc loop, if running.
func (m *Manager) Close() {
	if m.gcStop != nil {
		close(m.gcStop)
	}
	m.cpuPool.Close()
	m.ioPool.Close()
}
