package sip

import (
	"sync"
	"time"

	"github.com/embeddedsip/uacore/pkg/errcode"
)

// TimerID is an opaque handle into the shared timer wheel.
type TimerID uint64

type timerEntry struct {
	id       TimerID
	deadline time.Time
	fn       func()
	cancelled bool
}

// timerWheel is the process-wide timer facility spec §5 describes: "A
// single process-wide timer wheel is shared by all Agents; it is
// reference-counted by agent init/cleanup." Entries are a flat slice
// rather than an actual wheel structure since the Agent population and
// timer count expected here (registration renewal, retransmission
// backstops) is small; a bucketed wheel would be premature for this
// scale.
type timerWheel struct {
	mu      sync.Mutex
	nextID  TimerID
	entries map[TimerID]*timerEntry
	ready   []func()
}

var (
	sharedWheel   *timerWheel
	sharedWheelMu sync.Mutex
	sharedRefs    int
)

// acquireSharedWheel increments the process-wide refcount, creating the
// wheel on the first reference.
func acquireSharedWheel() *timerWheel {
	sharedWheelMu.Lock()
	defer sharedWheelMu.Unlock()
	if sharedWheel == nil {
		sharedWheel = &timerWheel{entries: make(map[TimerID]*timerEntry)}
	}
	sharedRefs++
	return sharedWheel
}

// releaseSharedWheel decrements the refcount, freeing the wheel once no
// Agent references it.
func releaseSharedWheel() {
	sharedWheelMu.Lock()
	defer sharedWheelMu.Unlock()
	sharedRefs--
	if sharedRefs <= 0 {
		sharedWheel = nil
		sharedRefs = 0
	}
}

// Schedule registers a timer firing at deadline. fn runs on the next
// Expire call made at or after deadline, never reentrantly from within
// Schedule itself.
func (w *timerWheel) Schedule(deadline time.Time, fn func()) (TimerID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if fn == nil {
		return 0, errcode.New(errcode.ErrInvalidArgument, nil)
	}
	w.nextID++
	id := w.nextID
	w.entries[id] = &timerEntry{id: id, deadline: deadline, fn: fn}
	return id, nil
}

// Cancel removes a pending timer. Cancelling an already-fired or unknown
// timer is a no-op, matching the idempotent-destroy property timers need
// when a Dialog is torn down mid-flight.
func (w *timerWheel) Cancel(id TimerID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[id]; ok {
		e.cancelled = true
		delete(w.entries, id)
	}
}

// Expire removes every timer whose deadline has passed and returns their
// callbacks, without running them. Per spec §9's "timer callbacks
// that fire while the Agent's mutex is held must defer their action", the
// caller is expected to invoke the returned functions after releasing
// its own locks.
func (w *timerWheel) Expire(now time.Time) []func() {
	w.mu.Lock()
	var due []func()
	for id, e := range w.entries {
		if e.cancelled {
			continue
		}
		if !now.Before(e.deadline) {
			due = append(due, e.fn)
			delete(w.entries, id)
		}
	}
	w.mu.Unlock()
	return due
}
