package butex

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bthreadgo/gobutex/internal/spin"
)

// leastSleep is the shortest deadline this package will actually schedule;
// anything within it of now is treated as already expired, the same way
// the original's butex_wait treats a deadline within LEAST_SLEEP_US (1us)
// of now as an immediate timeout rather than bothering to arm a timer.
const leastSleep = time.Microsecond

// Wait blocks the caller until *w no longer equals expected, a Wake call
// targets w, the caller is stopped (task path only), or deadline passes
// (nil means wait forever). It returns ErrWouldBlock, ErrStop, or
// ErrTimedOut accordingly, or nil on a genuine wake. On the thread path, a
// kernel futex error other than a timeout is returned wrapped.
//
// If the calling goroutine was launched through a configured Scheduler
// (i.e. it is a task), it parks on a private channel instead of blocking
// its OS thread; otherwise it blocks in a real futex(2) wait via the
// configured KernelFutex, pinning itself to its OS thread for the
// duration.
func Wait(w *Word, expected int32, deadline *time.Time) error {
	b := fromWord(w)
	if b.Word.Load() != expected {
		return ErrWouldBlock
	}
	if scheduler != nil {
		if task, ok := scheduler.Current(); ok {
			return taskWait(b, task, expected, deadline)
		}
	}
	return threadWait(b, expected, deadline)
}

// WaitUninterruptible is Wait with stop delivery suppressed for its
// duration: a concurrent StopWait still detaches the waiter exactly as it
// would otherwise, but the final result reports ErrTimedOut/ErrWouldBlock/
// success instead of ErrStop.
func WaitUninterruptible(w *Word, expected int32, deadline *time.Time) error {
	if scheduler != nil {
		if task, ok := scheduler.Current(); ok {
			prev := task.Interruptible()
			task.SetInterruptible(false)
			defer task.SetInterruptible(prev)
		}
	}
	return Wait(w, expected, deadline)
}

func taskWait(b *butex, task Task, expected int32, deadline *time.Time) error {
	var deadlineAt time.Time
	hasDeadline := deadline != nil
	if hasDeadline {
		deadlineAt = *deadline
		if !deadlineAt.After(time.Now().Add(leastSleep)) {
			return ErrTimedOut
		}
		if timers == nil {
			return ErrNoTimerService
		}
	}

	tw := newTaskWaiter(task, expected)

	if hasDeadline {
		id, ok := timers.Schedule(deadlineAt, func() { eraseFromButex(tw, true) })
		if !ok {
			return ErrScheduleFailed
		}
		tw.timerID = id
		tw.hasTimer = true
	}

	// Publish the cancellation slot before touching the list: a concurrent
	// StopWait must be able to find this waiter the moment it might be
	// queued, not after.
	task.SetWaiter(tw)

	enqueued := false
	b.lock.Lock()
	if b.Word.Load() == expected && !(task.Stopped() && task.Interruptible()) {
		b.waiters.pushBack(tw)
		tw.container.Store(b)
		enqueued = true
		numWaiters.Add(1)
	}
	b.lock.Unlock()

	if enqueued {
		<-tw.resume
	} else {
		tw.setState(waiterWouldBlock)
	}

	if tw.hasTimer {
		spin.Until(func() bool { return unscheduleTimer(tw.timerID) })
	}

	clearWaiterSlot(task)

	if task.Stopped() && task.Interruptible() {
		return ErrStop
	}
	switch tw.getState() {
	case waiterTimedOut:
		return ErrTimedOut
	case waiterWouldBlock:
		return ErrWouldBlock
	default:
		return nil
	}
}

func threadWait(b *butex, expected int32, deadline *time.Time) error {
	if kfutex == nil {
		return ErrNoKernelFutex
	}

	var relTimeout *time.Duration
	if deadline != nil {
		now := time.Now()
		if !deadline.After(now.Add(leastSleep)) {
			return ErrTimedOut
		}
		d := deadline.Sub(now)
		relTimeout = &d
	}

	tw := &threadWaiter{}
	atomic.StoreInt32(&tw.sig, sigNotSignalled)

	enqueued := false
	b.lock.Lock()
	if b.Word.Load() == expected {
		b.waiters.pushBack(tw)
		tw.container.Store(b)
		enqueued = true
		numWaiters.Add(1)
	}
	b.lock.Unlock()
	if !enqueued {
		return ErrWouldBlock
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		err := kfutex.Wait(&tw.sig, sigNotSignalled, relTimeout)
		if atomic.LoadInt32(&tw.sig) != sigNotSignalled {
			return nil
		}
		if err != nil {
			if eraseFromButex(tw, false) {
				if isTimeout(err) {
					return ErrTimedOut
				}
				return fmt.Errorf("butex: futex_wait: %w", err)
			}
			// A genuine wake raced our timeout or error and already
			// detached us; wait for it to finish flipping sig, then report
			// success.
			spin.Until(func() bool { return atomic.LoadInt32(&tw.sig) != sigNotSignalled })
			return nil
		}
		// Spurious wakeup: err is nil but sig did not change. Wait again.
	}
}

func wakeupThread(tw *threadWaiter) {
	atomic.StoreInt32(&tw.sig, sigSignalled)
	if kfutex != nil {
		kfutex.Wake(&tw.sig, 1)
	}
}

// unscheduleTimer cancels id's pending timeout callback and reports
// whether it is now safe to proceed: true if cancelled before running or
// already finished, false if it is currently running and the caller
// should retry.
func unscheduleTimer(id uint64) bool {
	if timers == nil {
		return true
	}
	return timers.Unschedule(id) != 1
}

// clearWaiterSlot restores task's cancellation slot to empty. If a
// concurrent StopWait is mid-flight, it will have swapped the slot to nil
// itself and will put the waiter pointer back shortly; spin until a swap
// observes something there to take, matching the handshake StopWait
// performs in erase.go.
func clearWaiterSlot(task Task) {
	spin.Until(func() bool { return task.SwapWaiter(nil) != nil })
}
