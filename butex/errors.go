package butex

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrWouldBlock is returned by Wait when the value no longer equals
	// expected, either before the wait began or at the recheck made under
	// the butex's lock just before queueing.
	ErrWouldBlock = errors.New("butex: value already changed")
	// ErrTimedOut is returned by Wait when its deadline elapsed before a
	// wake or a value change was observed.
	ErrTimedOut = errors.New("butex: wait deadline exceeded")
	// ErrStop is returned by Wait when the calling task was stopped while
	// waiting. It takes priority over ErrTimedOut: a task that is both
	// stopped and timed out is reported as stopped.
	ErrStop = errors.New("butex: wait cancelled by stop")
	// ErrUnknownTask is returned by StopWait when no live task with the
	// given id is known to the configured Scheduler.
	ErrUnknownTask = errors.New("butex: unknown task id")
	// ErrNoTimerService is returned by Wait on the task path when called
	// with a deadline while Configure has wired no TimerService. The thread
	// path does not use the timer service.
	ErrNoTimerService = errors.New("butex: no timer service configured")
	// ErrNoKernelFutex is returned by Wait on the thread path before
	// Configure has wired a KernelFutex.
	ErrNoKernelFutex = errors.New("butex: no kernel futex configured")
	// ErrScheduleFailed is returned by Wait when the configured
	// TimerService rejects a deadline (for example because it has been
	// stopped).
	ErrScheduleFailed = errors.New("butex: timer service rejected deadline")
)

// timeouter is the net.Error convention a KernelFutex's Wait error may
// implement to signal a timeout without this package depending on any
// concrete KernelFutex implementation's sentinel value.
type timeouter interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// numWaiters is a process-wide count of currently parked waiters, the Go
// stand-in for the original's bvar::Adder<int64_t>. No bvar-equivalent
// metrics library appears anywhere in this module's retrieval pack, so it
// is a plain atomic counter rather than a dependency on one.
var numWaiters atomic.Int64

// NumWaiters returns how many goroutines are currently parked across every
// butex in this process.
func NumWaiters() int64 { return numWaiters.Load() }
