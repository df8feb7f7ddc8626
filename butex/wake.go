package butex

import "unsafe"

// WakeOne wakes the single longest-waiting goroutine parked on w, if any,
// and reports how many were woken (0 or 1).
func WakeOne(w *Word) int {
	b := fromWord(w)

	b.lock.Lock()
	detached := b.waiters.popFront()
	if detached != nil {
		detached.link().container.Store(nil)
	}
	b.lock.Unlock()

	if detached == nil {
		return 0
	}
	numWaiters.Add(-1)
	resumeWaiter(detached)
	return 1
}

// WakeAll wakes every goroutine currently parked on w and reports how many
// were woken. Thread waiters are dispatched before task waiters (each
// group in its own FIFO order), matching the tie-break the original's
// butex_wake_all keeps by walking its pthread list ahead of its bthread
// list.
func WakeAll(w *Word) int {
	b := fromWord(w)

	b.lock.Lock()
	all := b.waiters.detachAll()
	for _, n := range all {
		n.link().container.Store(nil)
	}
	b.lock.Unlock()

	if len(all) == 0 {
		return 0
	}
	numWaiters.Add(-int64(len(all)))
	for _, n := range threadWaitersFirst(all) {
		resumeWaiter(n)
	}
	return len(all)
}

// WakeAllExcept wakes every waiter parked on w except the task belonging
// to excluded (if it is among them), leaving that one still queued. It
// reports how many were woken, with the same thread-waiters-first
// dispatch order as WakeAll.
func WakeAllExcept(w *Word, excluded TaskID) int {
	b := fromWord(w)

	var kept, woke []waiterNode
	b.lock.Lock()
	all := b.waiters.detachAll()
	for _, n := range all {
		if tw, ok := n.(*taskWaiter); ok && tw.task.ID() == excluded {
			kept = append(kept, n)
			continue
		}
		n.link().container.Store(nil)
		woke = append(woke, n)
	}
	for _, n := range kept {
		b.waiters.pushBack(n)
		n.link().container.Store(b)
	}
	b.lock.Unlock()

	if len(woke) == 0 {
		return 0
	}
	numWaiters.Add(-int64(len(woke)))
	for _, n := range threadWaitersFirst(woke) {
		resumeWaiter(n)
	}
	return len(woke)
}

// threadWaitersFirst stably reorders nodes so every threadWaiter precedes
// every taskWaiter, preserving each group's relative (FIFO) order.
func threadWaitersFirst(nodes []waiterNode) []waiterNode {
	ordered := make([]waiterNode, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := n.(*threadWaiter); ok {
			ordered = append(ordered, n)
		}
	}
	for _, n := range nodes {
		if _, ok := n.(*threadWaiter); !ok {
			ordered = append(ordered, n)
		}
	}
	return ordered
}

// Requeue implements the condition-variable-broadcast requeue: it detaches
// from's head waiter for a direct wake, moves everything else parked on
// from onto to without waking it, and reports 0 if from was empty or 1 if
// a waiter was woken. This mirrors the original's butex_requeue, which
// wakes exactly the head of the source list and relocates the rest.
func Requeue(from, to *Word) int {
	fb, tb := fromWord(from), fromWord(to)
	if fb == tb {
		return 0
	}

	// Lock in address order regardless of which argument is "from" so a
	// concurrent Requeue(to, from) cannot deadlock against this call.
	first, second := fb, tb
	if uintptr(unsafe.Pointer(fb)) > uintptr(unsafe.Pointer(tb)) {
		first, second = tb, fb
	}
	first.lock.Lock()
	second.lock.Lock()

	head := fb.waiters.popFront()
	if head != nil {
		head.link().container.Store(nil)
	}
	rest := fb.waiters.detachAll()
	for _, n := range rest {
		tb.waiters.pushBack(n)
		n.link().container.Store(tb)
	}

	second.lock.Unlock()
	first.lock.Unlock()

	if head == nil {
		return 0
	}
	numWaiters.Add(-1)
	resumeWaiter(head)
	return 1
}

// WakeOneAndRemoveRef wakes one waiter the way WakeOne does, then drops a
// reference added by AddRefBeforeWake. It is WakeOne followed by RemoveRef,
// so when a Destroy/Destruct might be racing the wake, the reference stays
// held for the whole detach-and-dispatch sequence.
func WakeOneAndRemoveRef(w *Word) int {
	n := WakeOne(w)
	RemoveRef(w)
	return n
}

// WakeAllAndRemoveRef is WakeAll followed by RemoveRef, with the same
// teardown-safety rationale as WakeOneAndRemoveRef.
func WakeAllAndRemoveRef(w *Word) int {
	n := WakeAll(w)
	RemoveRef(w)
	return n
}
