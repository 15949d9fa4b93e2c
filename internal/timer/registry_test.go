package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SingleTickRemovesItself(t *testing.T) {
	r := NewRegistry()
	var calls int32

	require.NoError(t, r.Start("once", func() { atomic.AddInt32(&calls, 1) }, Options{Ticks: 1, Delay: 5 * time.Millisecond}))
	assert.Equal(t, []string{"once"}, r.Active())

	assert.Eventually(t, func() bool { return len(r.Active()) == 0 }, time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRegistry_TickCount(t *testing.T) {
	r := NewRegistry()
	var calls int32

	require.NoError(t, r.Start("three", func() { atomic.AddInt32(&calls, 1) }, Options{Ticks: 3, Delay: 2 * time.Millisecond}))

	assert.Eventually(t, func() bool { return len(r.Active()) == 0 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRegistry_RepeatsUntilStopped(t *testing.T) {
	r := NewRegistry()
	var calls int32

	require.NoError(t, r.Start("forever", func() { atomic.AddInt32(&calls, 1) }, Options{Delay: 2 * time.Millisecond}))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 5 }, time.Second, 2*time.Millisecond)

	assert.True(t, r.Stop("forever"))
	assert.False(t, r.Stop("forever"))

	stopped := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), stopped+1)
}

func TestRegistry_DuplicateID(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()
	noop := func() {}

	require.NoError(t, r.Start("poll", noop, Options{Delay: time.Hour}))

	err := r.Start("poll", noop, Options{Delay: time.Hour})
	assert.ErrorIs(t, err, ErrTimerActive)

	assert.NoError(t, r.Start("poll", noop, Options{Delay: time.Hour, Interrupt: true}))
	assert.Equal(t, []string{"poll"}, r.Active())
}

func TestRegistry_InterruptStopsOldTimer(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()
	var oldCalls, newCalls int32

	require.NoError(t, r.Start("job", func() { atomic.AddInt32(&oldCalls, 1) }, Options{Delay: 2 * time.Millisecond}))
	require.NoError(t, r.Start("job", func() { atomic.AddInt32(&newCalls, 1) }, Options{Delay: 2 * time.Millisecond, Interrupt: true}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&newCalls) >= 3 }, time.Second, 2*time.Millisecond)
	old := atomic.LoadInt32(&oldCalls)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&oldCalls), old+1)
}

func TestRegistry_StopAll(t *testing.T) {
	r := NewRegistry()
	noop := func() {}

	require.NoError(t, r.Start("a", noop, Options{Delay: time.Hour}))
	require.NoError(t, r.Start("b", noop, Options{Delay: time.Hour}))
	assert.Equal(t, []string{"a", "b"}, r.Active())

	r.StopAll()
	assert.Empty(t, r.Active())
}

func TestRegistry_NilCallback(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Start("nil", nil, DefaultOptions()))
	assert.Empty(t, r.Active())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 1, opts.Ticks)
	assert.Equal(t, time.Second, opts.Delay)
	assert.False(t, opts.Interrupt)
}

func TestRealScheduler(t *testing.T) {
	fired := make(chan struct{})
	s := RealScheduler()

	s.AfterFunc(time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled callback never fired")
	}

	stopper := s.AfterFunc(time.Hour, func() { t.Error("stopped callback fired") })
	assert.True(t, stopper.Stop())
}
