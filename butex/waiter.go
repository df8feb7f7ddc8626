package butex

import "sync/atomic"

// waiterState tracks how a task waiter left the wait. The shared eraser
// (timer expiry or stop) sets waiterTimedOut when it detaches the waiter;
// taskWait sets waiterWouldBlock when the recheck refuses to queue it; a
// normal wake leaves it unchanged. The zero value means "still queued, or
// woken normally."
type waiterState int32

const (
	waiterQueued waiterState = iota // default: still queued, or woken normally
	waiterTimedOut
	waiterWouldBlock
)

// waiterLink is the intrusive list linkage shared by taskWaiter and
// threadWaiter, playing the role of the original's ButexWaiter base plus
// its embedded base::LinkNode. container is the butex currently holding
// this waiter in its list, or nil if detached; it is the single point of
// truth erase_from_butex-equivalents race on.
type waiterLink struct {
	prev, next waiterNode
	container  atomic.Pointer[butex]
}

func (l *waiterLink) link() *waiterLink { return l }

// waiterNode is anything that can sit in a waiterList: taskWaiter and
// threadWaiter both get it for free via their embedded waiterLink's
// promoted link method.
type waiterNode interface {
	link() *waiterLink
}

// taskWaiter is a task (goroutine launched through package sched) parked
// on a butex. It corresponds to the original's ButexBthreadWaiter.
type taskWaiter struct {
	waiterLink

	task     Task
	expected int32

	state    atomic.Int32 // waiterState
	resume   chan struct{}
	timerID  uint64
	hasTimer bool
}

func newTaskWaiter(task Task, expected int32) *taskWaiter {
	return &taskWaiter{
		task:     task,
		expected: expected,
		resume:   make(chan struct{}, 1),
	}
}

func (w *taskWaiter) setState(s waiterState) { w.state.Store(int32(s)) }
func (w *taskWaiter) getState() waiterState  { return waiterState(w.state.Load()) }

// threadWaiter is a native kernel thread (a goroutine that pinned itself
// with runtime.LockOSThread) parked in a real futex(2) wait. It
// corresponds to the original's ButexPthreadWaiter.
type threadWaiter struct {
	waiterLink

	sig int32 // plain int32, not atomic.Int32: futex needs a raw *int32
}

const (
	sigNotSignalled int32 = 0
	sigSignalled    int32 = 1
)

// waiterList is a plain doubly linked FIFO list of waiterNode, the Go
// equivalent of the original's intrusive base::LinkedList<ButexWaiter>.
type waiterList struct {
	head, tail waiterNode
	size       int
}

func (l *waiterList) pushBack(w waiterNode) {
	link := w.link()
	link.prev, link.next = l.tail, nil
	if l.tail != nil {
		l.tail.link().next = w
	} else {
		l.head = w
	}
	l.tail = w
	l.size++
}

func (l *waiterList) remove(w waiterNode) {
	link := w.link()
	if link.prev != nil {
		link.prev.link().next = link.next
	} else if l.head == w {
		l.head = link.next
	}
	if link.next != nil {
		link.next.link().prev = link.prev
	} else if l.tail == w {
		l.tail = link.prev
	}
	link.prev, link.next = nil, nil
	l.size--
}

func (l *waiterList) popFront() waiterNode {
	w := l.head
	if w != nil {
		l.remove(w)
	}
	return w
}

// detachAll empties l and returns everything it held, in FIFO order.
// Callers that want the waiters to keep waiting (Requeue) re-push them
// onto another list; callers that want to wake them (WakeAll,
// WakeAllExcept) dispatch after clearing each one's container.
func (l *waiterList) detachAll() []waiterNode {
	out := make([]waiterNode, 0, l.size)
	for w := l.popFront(); w != nil; w = l.popFront() {
		out = append(out, w)
	}
	return out
}
