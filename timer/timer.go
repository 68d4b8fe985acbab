// Package timer implements the player's row-tick clock: a down-counter
// reloaded from a period that may be changed from the control context
// while the mixing context is clocking it. Period updates are latched
// rather than applied immediately, so a Clock in progress always finishes
// against the period it started with. Unlike the reference implementation,
// SetPeriod never blocks the caller: a write that arrives while a previous
// one is still pending is queued one deep instead of spinning, since this
// port's control and mixing contexts are not guaranteed to be separate
// preemptible threads. A single cooperative host loop may drive both, and
// a spin there would deadlock rather than yield to the consumer.
package timer

import "sync/atomic"

// Timer is a down-counter with edge-detected fire reporting. Clock is
// called from the mixing context; SetPeriod, Reset and IsFired are called
// from the control context. Safe for that single-writer/single-reader
// split without further locking.
type Timer struct {
	counter   uint16
	period    uint16
	newPeriod uint16

	loadNewPeriod atomic.Bool

	queuedPeriod uint16
	hasQueued    atomic.Bool

	fireCounter     atomic.Uint32
	fireCounterLast uint32
}

// Reset loads period as both the active and latched period and restarts
// the down-counter.
func (t *Timer) Reset(period uint16) {
	t.period = period
	t.newPeriod = period
	t.loadNewPeriod.Store(false)
	t.hasQueued.Store(false)
	t.counter = period
	t.fireCounter.Store(0)
	t.fireCounterLast = 0
}

// Period returns the latched period, i.e. the value a pending SetPeriod
// will install on the next Clock, not necessarily the period the
// down-counter is currently counting against.
func (t *Timer) Period() uint16 {
	return t.newPeriod
}

// SetPeriod latches a new period to take effect on the next Clock, which
// restarts the down-counter from it. If a previously latched period has not yet been
// consumed by Clock, period is queued behind it rather than overwriting
// it, so a call never silently loses another's value; a third call
// arriving before the queued one is consumed overwrites the queue slot in
// turn.
func (t *Timer) SetPeriod(period uint16) {
	if !t.loadNewPeriod.Load() {
		t.newPeriod = period
		t.loadNewPeriod.Store(true)
		return
	}

	t.queuedPeriod = period
	t.hasQueued.Store(true)
}

// Clock consumes any pending latched period, decrements the down-counter
// by one tick, and reloads plus bumps the fire counter when it reaches
// zero. Call once per tick from the mixing context.
func (t *Timer) Clock() {
	if t.loadNewPeriod.CompareAndSwap(true, false) {
		t.period = t.newPeriod
		t.counter = t.newPeriod

		if t.hasQueued.CompareAndSwap(true, false) {
			t.newPeriod = t.queuedPeriod
			t.loadNewPeriod.Store(true)
		}
	}

	t.counter--
	if t.counter == 0 {
		t.fireCounter.Add(1)
		t.counter = t.period
	}
}

// IsFired reports whether the down-counter has reloaded since the last
// call to IsFired, and advances the edge-detection state.
func (t *Timer) IsFired() bool {
	current := t.fireCounter.Load()
	fired := current != t.fireCounterLast
	t.fireCounterLast = current
	return fired
}
