// Package sched provides the task registry that butex's task-wait path
// consumes: identity for "am I currently running as a scheduled task",
// lookup of a task by id for StopWait, and the per-task cancellation slot
// used by the stop-bridge handshake between a StopWait caller and a parked
// waiter.
//
// Go's runtime already does M:N scheduling of goroutines onto OS threads,
// so this package does not reimplement a ready queue or a worker pool (that
// would just be a slower copy of what the Go scheduler already does); it
// only tracks which goroutines are "tasks" launched through Go, so that
// butex can tell a task waiter from a thread waiter the way the original
// tells a bthread from a pthread by checking tls_task_group.
package sched

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// TaskID identifies a task. It is a plain uint64 (not a distinct named
// type) so that *Task satisfies butex's Task interface by structural typing
// without importing butex. Scheduler's Current/Lookup return *Task, not
// butex.Task, so Scheduler itself is adapted to butex.Scheduler by package
// bthread.
type TaskID = uint64

// Task is one unit of work launched through Scheduler.Go. Its exported
// methods are exactly the surface butex.Task needs.
type Task struct {
	id            TaskID
	stopped       atomic.Bool
	interruptible atomic.Bool
	waiterSlot    atomic.Value // always holds *waiterBox, never a bare nil
}

// waiterBox works around atomic.Value's refusal to store a nil interface:
// we always store a *waiterBox, even when the waiter inside it is nil.
type waiterBox struct{ v any }

// ID returns the task's identity, stable for its lifetime.
func (t *Task) ID() TaskID { return t.id }

// Stopped reports whether this task has been asked to stop.
func (t *Task) Stopped() bool { return t.stopped.Load() }

// RequestStop marks the task stopped. It does not itself interrupt any
// in-progress wait; callers that want that call butex.StopWait(tid) too.
func (t *Task) RequestStop() { t.stopped.Store(true) }

// Interruptible reports whether a stop request may currently interrupt
// this task's wait.
func (t *Task) Interruptible() bool { return t.interruptible.Load() }

// SetInterruptible toggles whether stop delivery is honored; WaitUninterruptible
// clears this around a call and restores it afterward.
func (t *Task) SetInterruptible(v bool) { t.interruptible.Store(v) }

// SetWaiter publishes w (expected to be a *taskWaiter or *threadWaiter, but
// typed as any so this package need not import butex) into the
// cancellation slot.
func (t *Task) SetWaiter(w any) {
	t.waiterSlot.Store(&waiterBox{w})
}

// SwapWaiter atomically replaces the cancellation slot's contents with w,
// returning what was there before. Used both to publish a new waiter
// (release) and, by a remote stopper, to take temporary ownership (acquire)
// before restoring it.
func (t *Task) SwapWaiter(w any) any {
	old := t.waiterSlot.Swap(&waiterBox{w})
	if old == nil {
		return nil
	}
	return old.(*waiterBox).v
}

// Scheduler is a registry of live tasks, keyed by id, plus a goroutine-id
// keyed index used to answer "is the calling goroutine a task, and which
// one" the way tls_task_group answers it in the original.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[TaskID]*Task
	nextID uint64

	tlsMu sync.Mutex
	tls   map[int64]*Task
}

// New returns an empty task registry.
func New() *Scheduler {
	return &Scheduler{
		tasks: make(map[TaskID]*Task),
		tls:   make(map[int64]*Task),
	}
}

// Go launches fn on a new goroutine as a task, registering it for the
// duration of fn so that Current and Lookup can find it. It returns
// immediately; fn runs asynchronously.
func (s *Scheduler) Go(fn func(*Task)) *Task {
	id := atomic.AddUint64(&s.nextID, 1)
	t := &Task{id: id}
	t.interruptible.Store(true)

	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()

	go func() {
		gid := goroutineID()
		s.tlsMu.Lock()
		s.tls[gid] = t
		s.tlsMu.Unlock()

		defer func() {
			s.tlsMu.Lock()
			delete(s.tls, gid)
			s.tlsMu.Unlock()
			s.mu.Lock()
			delete(s.tasks, id)
			s.mu.Unlock()
		}()

		fn(t)
	}()
	return t
}

// Current returns the Task the calling goroutine is running as, if any.
func (s *Scheduler) Current() (*Task, bool) {
	s.tlsMu.Lock()
	t, ok := s.tls[goroutineID()]
	s.tlsMu.Unlock()
	return t, ok
}

// Lookup finds a still-live task by id, for StopWait's cross-goroutine
// targeting.
func (s *Scheduler) Lookup(tid TaskID) (*Task, bool) {
	s.mu.Lock()
	t, ok := s.tasks[tid]
	s.mu.Unlock()
	return t, ok
}

// goroutineID extracts the running goroutine's id by parsing the header
// line runtime.Stack always writes first. There is no supported API for
// this; it is the same trick used by most Go goroutine-local-storage
// shims, and it stands in here for the thread-local tls_task_group lookup
// the original implementation relies on.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
