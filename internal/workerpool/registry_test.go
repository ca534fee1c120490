package workerpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	p := New("cpu", 2)
	defer p.Close()

	reg.Register("cpu", p)
	got, ok := reg.Get("cpu")
	require.True(t, ok)
	require.Same(t, p, got)

	_, ok = reg.Get("missing")
	require.False(t, ok)
}

func TestRegistryAllReturnsSnapshot(t *testing.T) {
	reg := NewRegistry()
	p1 := New("cpu", 1)
	p2 := New("io", 1)
	defer p1.Close()
	defer p2.Close()

	reg.Register("cpu", p1)
	reg.Register("io", p2)

	all := reg.All()
	require.Len(t, all, 2)
	require.Contains(t, all, "cpu")
	require.Contains(t, all, "io")
}
