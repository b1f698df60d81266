package loop

import (
	"sort"
	"sync"
	"time"

	"github.com/universal-console/garage/internal/interfaces"
)

// TimerScheduler runs callbacks on a Poster after a real delay. A callback
// cancelled after its timer fired but before the loop ran it is dropped.
type TimerScheduler struct {
	poster interfaces.Poster
	mu     sync.Mutex
	next   interfaces.TimerHandle
	timers map[interfaces.TimerHandle]*time.Timer
}

// NewTimerScheduler creates a scheduler posting onto poster
func NewTimerScheduler(poster interfaces.Poster) *TimerScheduler {
	return &TimerScheduler{
		poster: poster,
		timers: make(map[interfaces.TimerHandle]*time.Timer),
	}
}

// ScheduleOnce implements interfaces.Scheduler
func (s *TimerScheduler) ScheduleOnce(delay time.Duration, fn func()) interfaces.TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	handle := s.next
	s.timers[handle] = time.AfterFunc(delay, func() {
		s.poster.Post(func() { s.fire(handle, fn) })
	})
	return handle
}

// Cancel implements interfaces.Scheduler
func (s *TimerScheduler) Cancel(handle interfaces.TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[handle]; ok {
		t.Stop()
		delete(s.timers, handle)
	}
}

// Stop cancels every pending timer
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for handle, t := range s.timers {
		t.Stop()
		delete(s.timers, handle)
	}
}

// Pending returns the number of timers that have not yet run
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TimerScheduler) fire(handle interfaces.TimerHandle, fn func()) {
	s.mu.Lock()
	_, ok := s.timers[handle]
	delete(s.timers, handle)
	s.mu.Unlock()

	if ok {
		fn()
	}
}

// VirtualScheduler is a Scheduler driven by a manual clock. Callbacks run
// synchronously inside Advance, in due-time order, ties broken by the order
// they were scheduled.
type VirtualScheduler struct {
	now     time.Time
	next    interfaces.TimerHandle
	pending []virtualTimer
}

type virtualTimer struct {
	handle interfaces.TimerHandle
	due    time.Time
	fn     func()
}

// NewVirtualScheduler creates a virtual clock starting at start
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	return &VirtualScheduler{now: start}
}

// Now returns the virtual time
func (v *VirtualScheduler) Now() time.Time {
	return v.now
}

// ScheduleOnce implements interfaces.Scheduler
func (v *VirtualScheduler) ScheduleOnce(delay time.Duration, fn func()) interfaces.TimerHandle {
	v.next++
	v.pending = append(v.pending, virtualTimer{
		handle: v.next,
		due:    v.now.Add(delay),
		fn:     fn,
	})
	return v.next
}

// Cancel implements interfaces.Scheduler
func (v *VirtualScheduler) Cancel(handle interfaces.TimerHandle) {
	for i, t := range v.pending {
		if t.handle == handle {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return
		}
	}
}

// Pending returns the number of callbacks waiting to run
func (v *VirtualScheduler) Pending() int {
	return len(v.pending)
}

// Advance moves the clock forward by d, running every callback that falls
// due on the way, including ones scheduled by earlier callbacks.
func (v *VirtualScheduler) Advance(d time.Duration) {
	target := v.now.Add(d)
	for {
		idx := v.earliestDue(target)
		if idx < 0 {
			break
		}
		t := v.pending[idx]
		v.pending = append(v.pending[:idx], v.pending[idx+1:]...)
		v.now = t.due
		t.fn()
	}
	v.now = target
}

func (v *VirtualScheduler) earliestDue(limit time.Time) int {
	if len(v.pending) == 0 {
		return -1
	}
	order := make([]int, len(v.pending))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta, tb := v.pending[order[a]], v.pending[order[b]]
		if !ta.due.Equal(tb.due) {
			return ta.due.Before(tb.due)
		}
		return ta.handle < tb.handle
	})
	first := order[0]
	if v.pending[first].due.After(limit) {
		return -1
	}
	return first
}
