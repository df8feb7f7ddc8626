package butex

// eraseFromButex is the shared idempotent eraser the timer-expiry path,
// StopWait, and threadWait's own timeout handling route through,
// corresponding to the original's erase_from_butex. It re-reads w's
// container under that butex's lock (the container may have changed, or
// gone nil, by the time this runs), and if it still finds w there, detaches
// it and - for a task waiter - marks it timed out. wakeup controls whether
// the detached waiter is resumed; the timer path and StopWait pass true,
// since they exist to unblock a waiter that would otherwise wait forever,
// while threadWait passes false because it is the waiter removing itself.
//
// It returns false if w had already been detached (by a wake, or by a
// previous call racing this one), in which case nothing further happens:
// whichever remover got there first owns the outcome.
func eraseFromButex(w waiterNode, wakeup bool) bool {
	link := w.link()
	for {
		b := link.container.Load()
		if b == nil {
			return false
		}
		b.lock.Lock()
		if b != link.container.Load() {
			// w moved to a different butex (or was detached) between our
			// load and acquiring this lock; retry against whatever it
			// points to now.
			b.lock.Unlock()
			continue
		}
		b.waiters.remove(w)
		link.container.Store(nil)
		if tw, ok := w.(*taskWaiter); ok {
			tw.setState(waiterTimedOut)
		}
		b.lock.Unlock()

		numWaiters.Add(-1)
		if wakeup {
			resumeWaiter(w)
		}
		return true
	}
}

// StopWait interrupts tid's current wait, if it is waiting on any butex.
// It is safe to call whether or not tid is currently waiting, and safe to
// call concurrently with tid's own Wait returning on its own.
func StopWait(tid TaskID) error {
	if scheduler == nil {
		return ErrUnknownTask
	}
	task, ok := scheduler.Lookup(tid)
	if !ok {
		return ErrUnknownTask
	}

	// Take temporary ownership of the cancellation slot, leaving it nil so
	// that a concurrent Wait finishing on its own knows to spin rather than
	// assume no one is touching it (see clearWaiterSlot in wait.go).
	old := task.SwapWaiter(nil)
	if old != nil {
		if node, ok := old.(waiterNode); ok {
			eraseFromButex(node, true)
		}
	}
	task.SetWaiter(old)
	return nil
}

func resumeWaiter(w waiterNode) {
	switch v := w.(type) {
	case *taskWaiter:
		select {
		case v.resume <- struct{}{}:
		default:
		}
	case *threadWaiter:
		wakeupThread(v)
	}
}
