package server

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskstation/internal/jobmanager"
	"taskstation/internal/metrics"
	"taskstation/internal/persistence"
	"taskstation/internal/router"
	"taskstation/internal/workerpool"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log, err := persistence.Open(t.TempDir() + "/jobs.jsonl")
	require.NoError(t, err)

	reg := metrics.New()
	mgr, err := jobmanager.New(jobmanager.Config{
		QueueMax:   50,
		CPUTimeout: time.Second,
		IOTimeout:  time.Second,
		CPUWorkers: 1,
		IOWorkers:  1,
	}, reg, log, nil)
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	rt := router.New(mgr, workerpool.NewRegistry())
	t.Cleanup(rt.Close)
	return New(":0", rt, nil)
}

// hit sends a raw HTTP/1.0 request through a net.Pipe and returns the
// full response, headers included.
func hit(t *testing.T, s *Server, req string) []byte {
	t.Helper()
	if !strings.HasSuffix(req, "\r\n\r\n") {
		req += "\r\n\r\n"
	}

	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })

	done := make(chan struct{})
	go func() {
		_ = c1.SetDeadline(time.Now().Add(5 * time.Second))
		s.handleConn(c1)
		close(done)
	}()

	_, err := io.WriteString(c2, req)
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	_, _ = io.Copy(buf, c2)
	<-done
	return buf.Bytes()
}

func statusOf(raw []byte) int {
	line := strings.SplitN(string(raw), "\r\n", 2)[0]
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0
	}
	n := 0
	for _, c := range parts[1] {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func TestHandleConnServesRoot(t *testing.T) {
	s := newTestServer(t)
	raw := hit(t, s, "GET / HTTP/1.0\r\n\r\n")
	require.Equal(t, 200, statusOf(raw))
}

func TestHandleConnServesStatus(t *testing.T) {
	s := newTestServer(t)
	raw := hit(t, s, "GET /status HTTP/1.0\r\n\r\n")
	require.Equal(t, 200, statusOf(raw))
	require.True(t, strings.Contains(string(raw), "\"pools\""))
}

func TestHandleConnRejectsBadRequestLine(t *testing.T) {
	s := newTestServer(t)
	raw := hit(t, s, "GET / HTTP/1.1\r\n\r\n")
	require.Equal(t, 400, statusOf(raw))
}

func TestHandleConnDispatchesTaskRoute(t *testing.T) {
	s := newTestServer(t)
	raw := hit(t, s, "GET /reverse?text=abc HTTP/1.0\r\n\r\n")
	require.Equal(t, 200, statusOf(raw))
}

func TestHandleConnIncludesTraceHeader(t *testing.T) {
	s := newTestServer(t)
	raw := hit(t, s, "GET / HTTP/1.0\r\n\r\n")
	require.True(t, strings.Contains(string(raw), "X-Request-Id"))
}
