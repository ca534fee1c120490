// Package server implements the HTTP/1.0-over-raw-TCP accept loop: one
// goroutine handles each connection to completion, then closes it
// (Connection: close, no persistent connections). Everything but
// parsing/serialization and the accept loop itself is delegated to
// internal/router.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"taskstation/internal/http10"
	"taskstation/internal/ids"
	"taskstation/internal/router"
)

// Server owns the TCP listener and dispatches parsed requests to a
// Router, intercepting /status itself since that endpoint needs
// process-wide runtime state the router has no reason to know about.
type Server struct {
	addr   string
	rt     *router.Router
	logger *zap.Logger
}

// New builds a Server bound to addr, dispatching through rt.
func New(addr string, rt *router.Router, logger *zap.Logger) *Server {
	return &Server{addr: addr, rt: rt, logger: logger}
}

func (s *Server) handleConn(c net.Conn) {
	defer c.Close()

	trace := map[string]string{
		"X-Request-Id": ids.NewRequestID(),
		"X-Worker-Pid": strconv.Itoa(PID()),
	}

	r := bufio.NewReader(c)
	req, err := http10.ParseRequest(r)
	if err != nil {
		http10.WriteErrorJSON(c, 400, "bad_request", err.Error(), trace)
		return
	}

	if req.Method == "GET" {
		path, _ := http10.SplitTarget(req.Target)
		if path == "/status" {
			out := map[string]any{
				"pid":         PID(),
				"uptime_ms":   Uptime().Milliseconds(),
				"started_at":  StartedAt().UTC().Format(time.RFC3339Nano),
				"connections": ConnCount(),
				"pools":       s.rt.PoolsSummary(),
			}
			b, _ := json.Marshal(out)
			http10.WriteJSONH(c, 200, string(b), trace)
			return
		}
	}

	res := s.rt.Dispatch(req.Method, req.Target)

	hdrs := make(map[string]string, len(trace)+len(res.Headers))
	for k, v := range trace {
		hdrs[k] = v
	}
	for k, v := range res.Headers {
		hdrs[k] = v
	}

	if res.JSON {
		if res.Err != nil {
			http10.WriteErrorJSON(c, res.Status, res.Err.Code, res.Err.Detail, hdrs)
		} else {
			http10.WriteJSONH(c, res.Status, res.Body, hdrs)
		}
	} else {
		http10.WritePlainH(c, res.Status, res.Body, hdrs)
	}
}

// ListenAndServe accepts connections on s.addr until ctx is canceled. A
// canceled context closes the listener, which unblocks Accept with an
// error that ListenAndServe treats as a clean shutdown rather than a
// failure.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	if s.logger != nil {
		s.logger.Info("http listener started", zap.String("addr", s.addr))
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		markConnAccepted()
		go s.handleConn(conn)
	}
}
