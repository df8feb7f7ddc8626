// Package bthread is the composition root: it wires package sched's task
// registry, package timer's deadline service, and package futex's kernel
// futex into package butex's three collaborator interfaces.
//
// None of sched, timer, or futex import butex - they satisfy its
// Task/TimerService/KernelFutex interfaces purely by structural typing -
// and this package exists mainly to adapt sched.Scheduler's
// concretely-typed return values (*sched.Task) to butex.Scheduler's
// interface-typed ones (butex.Task), which Go's method-set matching does
// not do automatically.
package bthread

import (
	"time"

	"github.com/bthreadgo/gobutex/butex"
	"github.com/bthreadgo/gobutex/futex"
	"github.com/bthreadgo/gobutex/sched"
	"github.com/bthreadgo/gobutex/timer"
)

// Runtime bundles the three live collaborators after Setup.
type Runtime struct {
	Sched *sched.Scheduler
	Timer *timer.Service
}

// Setup constructs a scheduler and a timer service, wires them plus the
// platform's kernel futex into package butex via butex.Configure, and
// returns the runtime plus a teardown function that stops the timer
// service. Call it once, before any butex.Wait/Wake/StopWait call.
func Setup() (*Runtime, func()) {
	s := sched.New()
	t := timer.New()

	butex.Configure(schedAdapter{s}, timerAdapter{t}, futex.Default)

	return &Runtime{Sched: s, Timer: t}, t.Stop
}

// Go launches fn as a task on the runtime's scheduler, the same way
// bthread_start_* launches a new bthread.
func (r *Runtime) Go(fn func(*sched.Task)) *sched.Task {
	return r.Sched.Go(fn)
}

// schedAdapter adapts *sched.Scheduler to butex.Scheduler: its methods
// are identical to sched.Scheduler's except for returning butex.Task
// (an interface) in place of *sched.Task (a concrete type).
type schedAdapter struct{ s *sched.Scheduler }

func (a schedAdapter) Current() (butex.Task, bool) {
	t, ok := a.s.Current()
	if !ok {
		return nil, false
	}
	return t, true
}

func (a schedAdapter) Lookup(tid butex.TaskID) (butex.Task, bool) {
	t, ok := a.s.Lookup(tid)
	if !ok {
		return nil, false
	}
	return t, true
}

// timerAdapter adapts *timer.Service to butex.TimerService. The method
// sets are already identical; this only exists so the adapter's static
// type documents the pairing the way schedAdapter must.
type timerAdapter struct{ t *timer.Service }

func (a timerAdapter) Schedule(deadline time.Time, cb func()) (uint64, bool) {
	return a.t.Schedule(deadline, cb)
}

func (a timerAdapter) Unschedule(id uint64) int {
	return a.t.Unschedule(id)
}
