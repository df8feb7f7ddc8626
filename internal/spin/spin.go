// Package spin provides the bounded busy-wait used everywhere this module
// has to wait out a narrow, bounded race instead of blocking: draining a
// Butex's teardown refcount, waiting for an in-flight timer callback to
// finish touching a waiter, or waiting for a cancellation slot to be
// restored by a concurrent stopper.
//
// The shape is the same backoff twmb/dash's block package spins with
// before handing off to sync.Cond: spin a handful of times, then start
// calling runtime.Gosched so the OS thread running the spin doesn't starve
// whichever goroutine it is waiting on.
package spin

import "runtime"

// busyIters is how many tight iterations we try before yielding the
// goroutine's turn via runtime.Gosched. Matches BT_LOOP_WHEN's "30 nops
// before sched_yield" from the original implementation this module is
// based on.
const busyIters = 30

// Until busy-waits, periodically yielding to the Go scheduler, until cond
// returns true. cond is called repeatedly and must be cheap and
// side-effect-free beyond reading the state it checks.
func Until(cond func() bool) {
	for i := 0; !cond(); i++ {
		if i < busyIters {
			continue
		}
		runtime.Gosched()
	}
}

// UntilWarn is Until, except onFirstSpin is called once if cond was not
// already true on entry, letting a caller log a diagnostic the way
// butex_destruct warns when it races with butex_wake.
func UntilWarn(cond func() bool, onFirstSpin func()) {
	warned := false
	Until(func() bool {
		done := cond()
		if !done && !warned {
			warned = true
			onFirstSpin()
		}
		return done
	})
}
