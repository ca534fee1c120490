// Package metrics implements the core's metrics aggregator (spec
// component C8): per-pool streaming wait/exec statistics via Welford's
// algorithm, mirrored into Prometheus collectors and exposed on a
// side-channel HTTP listener separate from the HTTP/1.0 job server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskstation/internal/workerpool"
)

// PoolSnapshot is the exposed shape for one pool's statistics (§4.8).
type PoolSnapshot struct {
	Samples      int64   `json:"samples"`
	AvgWaitMS    float64 `json:"avg_wait_ms"`
	AvgExecMS    float64 `json:"avg_exec_ms"`
	AvgTotalMS   float64 `json:"avg_total_ms"`
	StdDevWaitMS float64 `json:"std_dev_wait_ms"`
	StdDevExecMS float64 `json:"std_dev_exec_ms"`
}

// poolStats is the live, per-pool accumulator backing one PoolSnapshot,
// plus the Prometheus mirrors updated alongside it.
type poolStats struct {
	name string
	wait welford
	exec welford

	active int64
	total  int64

	waitHist prometheus.Observer
	execHist prometheus.Observer
	activeG  prometheus.Gauge
	totalG   prometheus.Gauge
}

// Registry is the process-wide metrics aggregator. One Registry backs
// every job pool (cpu, io) and, indirectly through the workerpool
// registry, every per-endpoint pool.
type Registry struct {
	reg *prometheus.Registry

	mu    sync.RWMutex
	pools map[string]*poolStats

	waitHistVec *prometheus.HistogramVec
	execHistVec *prometheus.HistogramVec
	activeVec   *prometheus.GaugeVec
	totalVec    *prometheus.GaugeVec

	queueDepth *prometheus.GaugeVec
}

// New creates a Registry with its own Prometheus registry (so metrics
// exposition never collides with the default global registry other
// libraries might touch).
func New() *Registry {
	r := &Registry{
		reg:   prometheus.NewRegistry(),
		pools: make(map[string]*poolStats),
	}
	r.waitHistVec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskstation",
		Name:      "pool_wait_ms",
		Help:      "Time a job spent queued before dequeue, in milliseconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pool"})
	r.execHistVec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskstation",
		Name:      "pool_exec_ms",
		Help:      "Time a job spent executing, in milliseconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pool"})
	r.activeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskstation",
		Name:      "pool_workers_active",
		Help:      "Workers currently busy in a pool.",
	}, []string{"pool"})
	r.totalVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskstation",
		Name:      "pool_workers_total",
		Help:      "Total workers configured for a pool.",
	}, []string{"pool"})
	r.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskstation",
		Name:      "queue_depth",
		Help:      "Jobs queued per priority band.",
	}, []string{"pool", "band"})

	r.reg.MustRegister(r.waitHistVec, r.execHistVec, r.activeVec, r.totalVec, r.queueDepth)
	return r
}

func (r *Registry) statsFor(pool string) *poolStats {
	r.mu.RLock()
	ps, ok := r.pools[pool]
	r.mu.RUnlock()
	if ok {
		return ps
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ps, ok := r.pools[pool]; ok {
		return ps
	}
	ps = &poolStats{
		name:     pool,
		waitHist: r.waitHistVec.WithLabelValues(pool),
		execHist: r.execHistVec.WithLabelValues(pool),
		activeG:  r.activeVec.WithLabelValues(pool),
		totalG:   r.totalVec.WithLabelValues(pool),
	}
	r.pools[pool] = ps
	return ps
}

// EnterBusy marks one more worker active in pool.
func (r *Registry) EnterBusy(pool string) {
	ps := r.statsFor(pool)
	ps.activeG.Inc()
}

// LeaveBusy marks one fewer worker active in pool.
func (r *Registry) LeaveBusy(pool string) {
	ps := r.statsFor(pool)
	ps.activeG.Dec()
}

// RecordWait records a dequeue wait duration for pool.
func (r *Registry) RecordWait(pool string, d time.Duration) {
	ps := r.statsFor(pool)
	ps.wait.add(d)
	ms := float64(d.Microseconds()) / 1000.0
	ps.waitHist.Observe(ms)
}

// RecordExec records an execution duration for pool.
func (r *Registry) RecordExec(pool string, d time.Duration) {
	ps := r.statsFor(pool)
	ps.exec.add(d)
	ms := float64(d.Microseconds()) / 1000.0
	ps.execHist.Observe(ms)
}

// SetWorkerTotal records the configured worker count for pool.
func (r *Registry) SetWorkerTotal(pool string, n int) {
	ps := r.statsFor(pool)
	ps.totalG.Set(float64(n))
}

// SetQueueLengths mirrors a priority queue's band lengths for pool.
func (r *Registry) SetQueueLengths(pool string, high, normal, low int) {
	r.queueDepth.WithLabelValues(pool, "High").Set(float64(high))
	r.queueDepth.WithLabelValues(pool, "Normal").Set(float64(normal))
	r.queueDepth.WithLabelValues(pool, "Low").Set(float64(low))
}

// Snapshot returns the current §4.8 view for pool. Unknown pools report
// all zeros rather than an error, since a pool may exist but simply have
// no samples yet.
func (r *Registry) Snapshot(pool string) PoolSnapshot {
	r.mu.RLock()
	ps, ok := r.pools[pool]
	r.mu.RUnlock()
	if !ok {
		return PoolSnapshot{}
	}
	wc, wmean, wstd := ps.wait.snapshot()
	_, emean, estd := ps.exec.snapshot()
	return PoolSnapshot{
		Samples:      wc,
		AvgWaitMS:    wmean,
		AvgExecMS:    emean,
		AvgTotalMS:   wmean + emean,
		StdDevWaitMS: wstd,
		StdDevExecMS: estd,
	}
}

// PoolNames returns every pool name with recorded statistics.
func (r *Registry) PoolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pools))
	for n := range r.pools {
		names = append(names, n)
	}
	return names
}

// WorkerPoolsSnapshot collects {total, active, workers[]} for every pool
// registered in the given workerpool registry, for the per-endpoint pool
// section of the status surface (§4.8).
func WorkerPoolsSnapshot(reg *workerpool.Registry) map[string]workerpool.Snapshot {
	out := make(map[string]workerpool.Snapshot)
	for name, p := range reg.All() {
		out[name] = p.Snapshot()
	}
	return out
}

// Server exposes the mirrored Prometheus collectors on addr, independent
// of the HTTP/1.0 job server (spec §4.8/§6.5).
type Server struct {
	httpSrv *http.Server
}

// StartServer starts the metrics side-channel listener in the
// background. Call Shutdown (or cancel ctx) to stop it.
func StartServer(ctx context.Context, addr string, r *Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return &Server{httpSrv: srv}
}

// Shutdown stops the metrics listener gracefully, waiting for in-flight
// requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
