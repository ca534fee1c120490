package jobtypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewJobStartsQueued(t *testing.T) {
	j := New("id1", "isprime", map[string]string{"n": "7"}, High, time.Minute)
	require.Equal(t, Queued, j.Status())
	require.Nil(t, j.StartedAt())
	require.Nil(t, j.FinishedAt())
	require.False(t, j.CancelFlag())
}

func TestCASQueuedToCanceledOnlyFromQueued(t *testing.T) {
	j := New("id2", "factor", nil, Normal, time.Minute)
	require.True(t, j.CASQueuedToCanceled())
	require.Equal(t, Canceled, j.Status())

	j2 := New("id3", "factor", nil, Normal, time.Minute)
	j2.SetStatus(Running)
	require.False(t, j2.CASQueuedToCanceled())
	require.Equal(t, Running, j2.Status())
}

func TestErrorStatusRoundTrip(t *testing.T) {
	s := ErrorStatus("boom")
	require.True(t, IsError(s))
	require.Equal(t, Status("Error: boom"), s)
	require.True(t, IsTerminal(s))
}

func TestIsTerminal(t *testing.T) {
	require.False(t, IsTerminal(Queued))
	require.False(t, IsTerminal(Running))
	require.True(t, IsTerminal(Done))
	require.True(t, IsTerminal(Canceled))
	require.True(t, IsTerminal(Timeout))
}

func TestTerminalFrom(t *testing.T) {
	require.Equal(t, Done, TerminalFrom(true, "", false))
	require.Equal(t, Timeout, TerminalFrom(true, "", true))
	require.Equal(t, ErrorStatus("bad"), TerminalFrom(false, "bad", false))
}

func TestIsExpired(t *testing.T) {
	j := New("id4", "pi", nil, Low, 10*time.Millisecond)
	require.False(t, j.IsExpired())
	time.Sleep(20 * time.Millisecond)
	require.True(t, j.IsExpired())
}
