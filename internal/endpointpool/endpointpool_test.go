package endpointpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskstation/internal/resp"
	"taskstation/internal/workerpool"
)

func TestCallRunsOnPoolAndReturnsResult(t *testing.T) {
	pool := workerpool.New("test-route", 1)
	defer pool.Close()
	a := New(pool)

	got := a.Call(func() resp.Result {
		return resp.PlainOK("hi")
	})
	require.Equal(t, 200, got.Status)
	require.Equal(t, "hi", got.Body)
}

func TestCallCapsConcurrencyAtPoolSize(t *testing.T) {
	pool := workerpool.New("single", 1)
	defer pool.Close()
	a := New(pool)

	release := make(chan struct{})
	started := make(chan struct{})
	go a.Call(func() resp.Result {
		close(started)
		<-release
		return resp.PlainOK("first")
	})
	<-started

	done := make(chan resp.Result, 1)
	go func() {
		done <- a.Call(func() resp.Result { return resp.PlainOK("second") })
	}()

	select {
	case <-done:
		t.Fatal("second call completed before pool freed up")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)

	select {
	case r := <-done:
		require.Equal(t, "second", r.Body)
	case <-time.After(time.Second):
		t.Fatal("second call never completed")
	}
}
