// Package butex implements a bthread-aware futex: a compare-and-wait word
// that can park both scheduled tasks (goroutines launched through package
// sched) and native kernel threads on the same underlying value, and wake
// either kind with FIFO, broadcast, or requeue semantics.
//
// It is grounded on Baidu brpc/bthread's butex.cpp, adapted to Go: a task
// waiter parks on a private channel instead of switching stacks, a thread
// waiter blocks in a real futex(2) syscall by way of package futex, and a
// deadline is served by an external timer service (package timer) instead
// of a bthread TimerThread. Higher-level primitives built on top of a
// butex - mutex, condition variable, countdown event, stoppable join - are
// out of scope for this package; it only provides the word and the four
// collaborator interfaces below.
package butex

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/bthreadgo/gobutex/internal/spin"
	"github.com/bthreadgo/gobutex/primitive"
)

// TaskID identifies a task across packages. It is an alias, not a distinct
// type, so that package sched (and any other scheduler implementation) can
// satisfy Task below purely by structural typing, without importing this
// package. A Scheduler whose methods return a concrete task type still
// needs an adapter (see package bthread).
type TaskID = uint64

// Task is the surface this package needs from a scheduled task: identity,
// stop/interruptible state, and the per-task cancellation slot used by the
// stop bridge (erase.go).
type Task interface {
	ID() TaskID
	Stopped() bool
	Interruptible() bool
	SetInterruptible(bool)
	SetWaiter(w any)
	SwapWaiter(w any) any
}

// Scheduler locates tasks: the one running on the calling goroutine, and
// any live task by id.
type Scheduler interface {
	Current() (Task, bool)
	Lookup(tid TaskID) (Task, bool)
}

// TimerService schedules and cancels deadline callbacks, standing in for
// bthread's TimerThread.
type TimerService interface {
	// Schedule arranges for cb to run once at deadline. ok is false if the
	// service can no longer accept work.
	Schedule(deadline time.Time, cb func()) (id uint64, ok bool)
	// Unschedule cancels a pending callback: 0 if cancelled before running,
	// 1 if currently running, -1 if already finished or unknown.
	Unschedule(id uint64) int
}

// KernelFutex is the real futex(2)-shaped primitive a thread waiter blocks
// on. A timeout error returned from Wait must implement the net.Error
// convention `Timeout() bool` so isTimeout (errors.go) can recognize it.
type KernelFutex interface {
	Wait(addr *int32, expected int32, timeout *time.Duration) error
	Wake(addr *int32, n int) int
}

var (
	scheduler Scheduler
	timers    TimerService
	kfutex    KernelFutex
	configMu  sync.Mutex
)

// Configure wires the three external collaborators this package needs.
// Call it once at process start, before any Wait/Wake/StopWait call; it is
// not safe to call concurrently with those.
func Configure(s Scheduler, t TimerService, kf KernelFutex) {
	configMu.Lock()
	defer configMu.Unlock()
	scheduler = s
	timers = t
	kfutex = kf
}

// Word is the externally visible handle to a butex: the address of its
// 32-bit value. It always sits at offset 0 of the owning butex, so
// fromWord below can recover the owning butex from a *Word the same way
// the original recovers a Butex from its value pointer (offsetof(Butex,
// value) == 0).
type Word struct {
	v atomic.Int32
}

// Load reads the current value.
func (w *Word) Load() int32 { return w.v.Load() }

// Store sets the current value. It does not wake anyone; callers that want
// to wake waiters after a change use WakeOne/WakeAll/WakeAllExcept.
func (w *Word) Store(val int32) { w.v.Store(val) }

// CompareAndSwap atomically sets the value to updated if it currently
// equals old, reporting whether it did.
func (w *Word) CompareAndSwap(old, updated int32) bool { return w.v.CompareAndSwap(old, updated) }

// Add atomically adds delta and returns the new value.
func (w *Word) Add(delta int32) int32 { return w.v.Add(delta) }

// butex is the full synchronization object; Word is its first field so
// that &b.Word and &b share an address, letting fromWord recover b from a
// *Word via a plain pointer cast.
type butex struct {
	Word

	unlockNref atomic.Int32

	// Padding so the waiter lock and list, which are touched on every
	// wait/wake, do not share a cache line with the hot value/refcount
	// fields above. This is field-level padding only: Go's allocator gives
	// no guarantee about the alignment of the start of the allocation
	// itself, so true cache-line alignment of separate butexes is
	// best-effort, the same limitation the rest of this module's padding
	// constants carry.
	_pad [primitive.FalseShare]byte

	lock    sync.Mutex
	waiters waiterList
}

// Size is the in-memory footprint of one butex, published for callers that
// embed a butex inline via Construct instead of allocating one with
// Create.
const Size = unsafe.Sizeof(butex{})

// alignedButex is what Create allocates: a butex plus trailing padding so
// it occupies at least a full cache line, reducing (without guaranteeing)
// false sharing between independently Create'd butexes.
type alignedButex struct {
	b   butex
	pad [primitive.CacheLine]byte
}

func (b *butex) init() {
	*b = butex{}
}

func fromWord(w *Word) *butex {
	return (*butex)(unsafe.Pointer(w))
}

// Create allocates and initializes a new butex, returning its value
// handle. The error return exists for API parity with the original's
// nullable return on allocation failure; Go's allocator panics rather than
// returning nil on out-of-memory, so in practice Create never returns a
// non-nil error.
func Create() (*Word, error) {
	a := &alignedButex{}
	a.b.init()
	return &a.b.Word, nil
}

// Destroy releases a butex created with Create. Any goroutine still
// parked on it must have already been woken; Destroy only waits out the
// refcounted-teardown race described at AddRefBeforeWake, it does not wake
// anyone itself.
func Destroy(w *Word) {
	if w == nil {
		return
	}
	fromWord(w).drainRefs()
}

// Construct initializes a butex in caller-provided memory, which must be
// at least Size bytes, suitably aligned for a butex (unsafe.Alignof of a
// butex, i.e. pointer alignment, since it holds pointer- and int-sized
// fields). It returns the value handle.
func Construct(mem unsafe.Pointer) *Word {
	b := (*butex)(mem)
	b.init()
	return &b.Word
}

// Destruct tears down a butex previously initialized with Construct. Like
// Destroy, it only drains the teardown race; it does not free mem.
func Destruct(mem unsafe.Pointer) {
	(*butex)(mem).drainRefs()
}

// AddRefBeforeWake implements the refcounted handoff a condition-variable-
// style caller needs: increment the butex's reference count before
// dropping the lock that protects the predicate, then either
// WakeOneAndRemoveRef/WakeAllAndRemoveRef (if there is something to wake)
// or RemoveRef (if not), so that a concurrent Destroy/Destruct cannot free
// the butex out from under a wake that is still in flight.
func AddRefBeforeWake(w *Word) {
	fromWord(w).unlockNref.Add(1)
}

// RemoveRef drops a reference added by AddRefBeforeWake without waking
// anyone.
func RemoveRef(w *Word) {
	fromWord(w).unlockNref.Add(-1)
}

func (b *butex) drainRefs() {
	spin.UntilWarn(
		func() bool { return b.unlockNref.Load() == 0 },
		func() {
			log.Printf("butex: destroy/destruct racing with an in-flight wake, waiting for refcount to drain")
		},
	)
}
