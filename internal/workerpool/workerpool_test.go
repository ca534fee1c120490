package workerpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecuteRunsOnWorker(t *testing.T) {
	p := New("test", 2)
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	ok := p.Execute(func() {
		ran = true
		wg.Done()
	})
	require.True(t, ok)
	wg.Wait()
	require.True(t, ran)
}

func TestSnapshotReportsWorkers(t *testing.T) {
	p := New("snap", 3)
	defer p.Close()
	time.Sleep(20 * time.Millisecond)

	snap := p.Snapshot()
	require.Equal(t, 3, snap.Total)
	require.Len(t, snap.Workers, 3)
	for _, w := range snap.Workers {
		require.Equal(t, Idle, w.State)
	}
}

func TestSnapshotReportsBusyWorker(t *testing.T) {
	p := New("busy", 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	p.Execute(func() {
		close(started)
		<-release
	})
	<-started

	snap := p.Snapshot()
	require.Equal(t, 1, snap.Active)
	require.Equal(t, Busy, snap.Workers[0].State)
	close(release)
}

func TestClosePropagatesShutdownToAllWorkers(t *testing.T) {
	p := New("close", 4)
	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
