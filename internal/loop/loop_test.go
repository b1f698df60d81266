package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLoopRunsCallbacksInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := New(8)
	var got []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Post(func() { close(done) })

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(context.Background()) }()

	<-done
	l.Close()
	require.NoError(t, <-errCh)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)

	// posting after close is dropped and does not block
	l.Post(func() { t.Error("ran after close") })
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestTimerSchedulerFiresOnLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewQueue()
	s := NewTimerScheduler(q)

	var fired atomic.Int32
	s.ScheduleOnce(5*time.Millisecond, func() { fired.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))

	assert.Equal(t, int32(0), fired.Load(), "callback must wait for the loop")
	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestTimerSchedulerCancelAfterFireDropsCallback(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewQueue()
	s := NewTimerScheduler(q)

	h := s.ScheduleOnce(time.Millisecond, func() { t.Error("cancelled callback ran") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))

	s.Cancel(h)
	q.Drain()
}

func TestTimerSchedulerStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewTimerScheduler(PosterFunc(func(fn func()) { fn() }))
	s.ScheduleOnce(time.Hour, func() {})
	s.ScheduleOnce(time.Hour, func() {})
	assert.Equal(t, 2, s.Pending())

	s.Stop()
	assert.Equal(t, 0, s.Pending())
	s.Cancel(99)
}

func TestVirtualSchedulerOrdering(t *testing.T) {
	start := time.Unix(0, 0)
	v := NewVirtualScheduler(start)

	var order []string
	v.ScheduleOnce(3*time.Second, func() { order = append(order, "c") })
	v.ScheduleOnce(time.Second, func() {
		order = append(order, "a")
		v.ScheduleOnce(time.Second, func() { order = append(order, "b") })
	})
	cancelled := v.ScheduleOnce(2*time.Second, func() { order = append(order, "x") })
	v.Cancel(cancelled)

	v.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, start.Add(2*time.Second), v.Now())

	v.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, v.Pending())
}

func TestVirtualSchedulerTiesRunInScheduleOrder(t *testing.T) {
	v := NewVirtualScheduler(time.Unix(0, 0))
	var order []int
	for i := 0; i < 4; i++ {
		i := i
		v.ScheduleOnce(time.Second, func() { order = append(order, i) })
	}
	v.Advance(time.Second)
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}
