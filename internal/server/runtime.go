package server

import (
	"os"
	"sync/atomic"
	"time"
)

var (
	startedAt = time.Now()
	connSeen  uint64
)

func markConnAccepted() { atomic.AddUint64(&connSeen, 1) }

// Uptime reports how long this process has been serving connections.
func Uptime() time.Duration { return time.Since(startedAt) }

// ConnCount reports the total number of connections accepted so far.
func ConnCount() uint64 { return atomic.LoadUint64(&connSeen) }

// PID returns the process id, surfaced on /status for operators
// correlating a running instance with ps/kill.
func PID() int { return os.Getpid() }

// StartedAt returns the instant this process began serving.
func StartedAt() time.Time { return startedAt }
