// Package router dispatches parsed HTTP/1.0 requests to task handlers,
// the job-manager surface, and the metrics snapshot. Every task from the
// classification table (spec §6.1) is reachable two ways: directly, as a
// best-effort route capped by its own per-endpoint pool (§4.9), and
// indirectly through /jobs/submit, which always queues rather than
// attempting inline execution.
package router

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"taskstation/internal/besteffort"
	"taskstation/internal/endpointpool"
	"taskstation/internal/http10"
	"taskstation/internal/jobmanager"
	"taskstation/internal/jobtypes"
	"taskstation/internal/queue"
	"taskstation/internal/resp"
	"taskstation/internal/tasks"
	"taskstation/internal/workerpool"
)

// route describes one direct task endpoint: its default per-endpoint
// pool size and its default best-effort deadline (§5: "fast CPU 500 ms;
// larger IO 10-20 s").
type route struct {
	name            string
	defaultWorkers  int
	defaultDeadline time.Duration
}

var routeTable = []route{
	{"isprime", 2, 500 * time.Millisecond},
	{"factor", 2, 500 * time.Millisecond},
	{"pi", 1, 2 * time.Second},
	{"mandelbrot", 1, 2 * time.Second},
	{"matrixmul", 1, 2 * time.Second},
	{"fibonacci", 2, 500 * time.Millisecond},
	{"reverse", 2, 500 * time.Millisecond},
	{"toupper", 2, 500 * time.Millisecond},
	{"random", 2, 500 * time.Millisecond},

	{"sortfile", 1, 10 * time.Second},
	{"wordcount", 2, 10 * time.Second},
	{"grep", 2, 10 * time.Second},
	{"hashfile", 2, 10 * time.Second},
	{"compress", 1, 20 * time.Second},
	{"createfile", 2, 500 * time.Millisecond},
	{"deletefile", 2, 500 * time.Millisecond},
	{"timestamp", 2, 500 * time.Millisecond},
}

// Router holds the per-route pool adapters and the job manager it
// defers to for /jobs/* and the offloaded tail of a best-effort call.
type Router struct {
	mgr      *jobmanager.Manager
	poolReg  *workerpool.Registry
	adapters map[string]*endpointpool.Adapter
}

// New builds per-route worker pools (sized from WORKERS_<ROUTE>
// environment overrides), registers them into poolReg for /status, and
// wires each to the job manager for best-effort execution.
func New(mgr *jobmanager.Manager, poolReg *workerpool.Registry) *Router {
	r := &Router{
		mgr:      mgr,
		poolReg:  poolReg,
		adapters: make(map[string]*endpointpool.Adapter, len(routeTable)),
	}
	for _, rt := range routeTable {
		n := envInt("WORKERS_"+strings.ToUpper(rt.name), rt.defaultWorkers)
		pool := workerpool.New(rt.name, n)
		poolReg.Register("route:"+rt.name, pool)
		r.adapters[rt.name] = endpointpool.New(pool)
	}
	return r
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func deadlineFor(name string) time.Duration {
	if v := os.Getenv("BEST_EFFORT_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	for _, rt := range routeTable {
		if rt.name == name {
			return rt.defaultDeadline
		}
	}
	return 500 * time.Millisecond
}

// Dispatch resolves one parsed HTTP/1.0 request into a Result. Only GET
// is accepted, matching the original server's read-only surface.
func (r *Router) Dispatch(method, target string) resp.Result {
	if method != "GET" {
		return resp.BadReq("method", "only GET is supported")
	}

	path, q := http10.SplitTarget(target)
	args := http10.ParseQuery(q)

	if a, ok := r.adapters[strings.TrimPrefix(path, "/")]; ok && strings.HasPrefix(path, "/") {
		name := strings.TrimPrefix(path, "/")
		return a.Call(func() resp.Result { return r.runDirect(name, args) })
	}

	switch path {
	case "/":
		return resp.PlainOK("taskstation\n")
	case "/help":
		return r.help()
	case "/jobs/submit":
		return r.jobsSubmit(args)
	case "/jobs/status":
		return r.jobsStatus(args)
	case "/jobs/result":
		return r.jobsResult(args)
	case "/jobs/cancel":
		return r.jobsCancel(args)
	case "/jobs/list":
		return r.jobsList()
	case "/metrics":
		return r.metrics()
	}

	return resp.NotFound("not_found", "route")
}

// runDirect executes a direct task route through the best-effort runner
// at Normal priority, translating its Outcome into the uniform Result
// contract (§4.5/§7).
func (r *Router) runDirect(name string, params map[string]string) resp.Result {
	outcome := besteffort.Execute(r.mgr, name, params, jobtypes.Normal, deadlineFor(name), func() (string, error) {
		fn, err := tasks.Lookup(name)
		if err != nil {
			return "", err
		}
		return fn(params)
	})

	switch outcome.Kind {
	case besteffort.Completed:
		return resp.JSONOK(outcome.JSON)
	case besteffort.HandlerFailed:
		return resp.BadReq("handler_error", outcome.Err)
	case besteffort.Offloaded:
		b, _ := json.Marshal(map[string]any{"job_id": outcome.JobID, "status": "queued"})
		return resp.JSONOK(string(b)).WithHeader("X-Job-Id", outcome.JobID)
	case besteffort.QueueFull:
		return resp.QueueFull(outcome.RetryAfterMS)
	default:
		return resp.IntErr("internal", "best-effort execution failed")
	}
}

func (r *Router) help() resp.Result {
	names := tasks.Names()
	sort.Strings(names)
	out := map[string]any{
		"tasks": names,
		"jobs":  []string{"/jobs/submit", "/jobs/status", "/jobs/result", "/jobs/cancel", "/jobs/list"},
	}
	b, _ := json.Marshal(out)
	return resp.JSONOK(string(b))
}

func (r *Router) jobsSubmit(args map[string]string) resp.Result {
	task := args["task"]
	if task == "" {
		return resp.BadReq("task", "task=<name> required")
	}
	priority := queue.ParsePriority(args["priority"])

	params := make(map[string]string, len(args))
	for k, v := range args {
		if k == "task" || k == "priority" {
			continue
		}
		params[k] = v
	}

	id, err := r.mgr.Submit(task, params, priority)
	if err != nil {
		return queueFullOrInternal(err)
	}
	b, _ := json.Marshal(map[string]any{"job_id": id, "status": "queued"})
	return resp.JSONOK(string(b))
}

func (r *Router) jobsStatus(args map[string]string) resp.Result {
	id := args["id"]
	if id == "" {
		return resp.BadReq("id", "id required")
	}
	status, ok := r.mgr.Status(id)
	if !ok {
		return resp.NotFound("not_found", "job not found")
	}
	b, _ := json.Marshal(map[string]any{"id": id, "status": string(status)})
	return resp.JSONOK(string(b))
}

func (r *Router) jobsResult(args map[string]string) resp.Result {
	id := args["id"]
	if id == "" {
		return resp.BadReq("id", "id required")
	}
	status, ok := r.mgr.Status(id)
	if !ok {
		return resp.NotFound("not_found", "job not found")
	}
	if !jobtypes.IsTerminal(status) {
		return resp.BadReq("not_ready", "job not finished yet")
	}

	out := map[string]any{"id": id, "status": string(status)}
	if status == jobtypes.Done {
		if result, _ := r.mgr.Result(id); result != "" {
			out["result"] = json.RawMessage(result)
		}
	}
	b, _ := json.Marshal(out)
	return resp.JSONOK(string(b))
}

func (r *Router) jobsCancel(args map[string]string) resp.Result {
	id := args["id"]
	if id == "" {
		return resp.BadReq("id", "id required")
	}
	if _, ok := r.mgr.Status(id); !ok {
		return resp.NotFound("not_found", "job not found")
	}
	canceled := r.mgr.Cancel(id)
	status, _ := r.mgr.Status(id)
	b, _ := json.Marshal(map[string]any{"canceled": canceled, "status": string(status)})
	return resp.JSONOK(string(b))
}

func (r *Router) jobsList() resp.Result {
	summaries := r.mgr.List()
	out := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, map[string]any{
			"id":       s.ID,
			"task":     s.Task,
			"status":   string(s.Status),
			"priority": s.Priority.String(),
		})
	}
	b, _ := json.Marshal(out)
	return resp.JSONOK(string(b))
}

func (r *Router) metrics() resp.Result {
	out := map[string]any{
		"pools":         r.mgr.GetMetrics(),
		"queue_lengths": r.mgr.QueueLengths(),
	}
	b, _ := json.Marshal(out)
	return resp.JSONOK(string(b))
}

func queueFullOrInternal(err error) resp.Result {
	var qf *jobmanager.ErrQueueFull
	if errors.As(err, &qf) {
		return resp.QueueFull(qf.RetryAfterMillis())
	}
	return resp.IntErr("internal", err.Error())
}

// PoolsSummary renders every registered pool (direct-route adapters and
// the job manager's cpu/io executor pools alike) for the /status
// endpoint, via the shared workerpool.Registry.
func (r *Router) PoolsSummary() map[string]workerpool.Snapshot {
	all := r.poolReg.All()
	out := make(map[string]workerpool.Snapshot, len(all))
	for name, snap := range all {
		out[name] = snap.Snapshot()
	}
	return out
}

// Close shuts down every per-route worker pool this Router created. The
// job manager it was built with is owned by the caller and is not
// closed here.
func (r *Router) Close() {
	for _, rt := range routeTable {
		if p, ok := r.poolReg.Get("route:" + rt.name); ok {
			if closer, ok := p.(interface{ Close() }); ok {
				closer.Close()
			}
		}
	}
}
