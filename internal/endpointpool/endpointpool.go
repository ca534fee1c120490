// Package endpointpool implements the per-endpoint pool adapter (spec
// §4.9): each route that does meaningful work is wrapped so its
// concurrency is capped at a dedicated worker pool's size, independent
// of the server's global connection count.
package endpointpool

import (
	"taskstation/internal/resp"
	"taskstation/internal/workerpool"
)

// Adapter wraps a named worker pool behind a single blocking Call: the
// calling server goroutine enqueues a closure and blocks on a
// single-shot channel for its outcome, with no timeout of its own (the
// server is responsible for its own client-facing timeouts, per §5).
type Adapter struct {
	pool *workerpool.Pool
}

// New wraps an existing pool for request-scoped dispatch.
func New(pool *workerpool.Pool) *Adapter {
	return &Adapter{pool: pool}
}

// Call runs handler on the adapter's pool and blocks for its result. If
// the pool has already been shut down, Call returns an Internal-style
// 500 rather than blocking forever.
func (a *Adapter) Call(handler func() resp.Result) resp.Result {
	out := make(chan resp.Result, 1)
	accepted := a.pool.Execute(func() {
		out <- handler()
	})
	if !accepted {
		return resp.IntErr("internal", "worker pool unavailable")
	}
	return <-out
}
