package butex_test

import (
	"testing"
	"time"

	"github.com/bthreadgo/gobutex/bthread"
	"github.com/bthreadgo/gobutex/butex"
	"github.com/bthreadgo/gobutex/sched"
)

func setup(t *testing.T) *bthread.Runtime {
	t.Helper()
	rt, teardown := bthread.Setup()
	t.Cleanup(teardown)
	return rt
}

// TestProducerConsumerWakeOne is the basic rendezvous: a consumer task
// waits for a value to change, a producer changes it and wakes exactly
// one waiter.
func TestProducerConsumerWakeOne(t *testing.T) {
	rt := setup(t)

	w, err := butex.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer butex.Destroy(w)

	results := make(chan error, 1)
	rt.Go(func(*sched.Task) {
		results <- butex.Wait(w, 0, nil)
	})

	time.Sleep(10 * time.Millisecond) // let the consumer enqueue

	w.Store(1)
	if n := butex.WakeOne(w); n != 1 {
		t.Fatalf("WakeOne: expected 1, got %d", n)
	}

	select {
	case err := <-results:
		if err != nil {
			t.Fatalf("Wait returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer never woke")
	}
}

// TestValueMismatchWouldBlock checks that Wait returns immediately,
// without ever parking, when the value has already changed.
func TestValueMismatchWouldBlock(t *testing.T) {
	setup(t)

	w, _ := butex.Create()
	defer butex.Destroy(w)
	w.Store(5)

	if err := butex.Wait(w, 0, nil); err != butex.ErrWouldBlock {
		t.Fatalf("Wait: got %v, want ErrWouldBlock", err)
	}
}

// TestTaskWaitTimesOut checks that a task waiter honors its deadline and
// reports ErrTimedOut, and that the process-wide waiter count (NumWaiters)
// returns to zero afterward.
func TestTaskWaitTimesOut(t *testing.T) {
	rt := setup(t)

	w, _ := butex.Create()
	defer butex.Destroy(w)

	results := make(chan error, 1)
	deadline := time.Now().Add(20 * time.Millisecond)
	rt.Go(func(*sched.Task) {
		results <- butex.Wait(w, 0, &deadline)
	})

	select {
	case err := <-results:
		if err != butex.ErrTimedOut {
			t.Fatalf("Wait: got %v, want ErrTimedOut", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait never timed out")
	}

	if n := butex.NumWaiters(); n != 0 {
		t.Fatalf("NumWaiters: got %d, want 0 after timeout", n)
	}
}

// TestThreadWaitTimesOut is the same property on the kernel-thread path:
// the calling goroutine never registered as a task, so Wait must block in
// a real futex wait and honor the deadline there.
func TestThreadWaitTimesOut(t *testing.T) {
	setup(t)

	w, _ := butex.Create()
	defer butex.Destroy(w)

	deadline := time.Now().Add(20 * time.Millisecond)
	start := time.Now()
	err := butex.Wait(w, 0, &deadline)
	if err != butex.ErrTimedOut {
		t.Fatalf("Wait: got %v, want ErrTimedOut", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned before deadline: %v", elapsed)
	}
}

// TestStopWaitInterruptsTask checks that StopWait unblocks a parked task
// and that the result reports ErrStop, taking priority over any other
// outcome.
func TestStopWaitInterruptsTask(t *testing.T) {
	rt := setup(t)

	w, _ := butex.Create()
	defer butex.Destroy(w)

	results := make(chan error, 1)
	taskCh := make(chan *sched.Task, 1)
	rt.Go(func(task *sched.Task) {
		taskCh <- task
		results <- butex.Wait(w, 0, nil)
	})

	task := <-taskCh
	time.Sleep(10 * time.Millisecond) // let it enqueue

	task.RequestStop()
	if err := butex.StopWait(task.ID()); err != nil {
		t.Fatalf("StopWait: %v", err)
	}

	select {
	case err := <-results:
		if err != butex.ErrStop {
			t.Fatalf("Wait: got %v, want ErrStop", err)
		}
	case <-time.After(time.Second):
		t.Fatal("StopWait never unblocked the waiter")
	}
}

// TestWakeAllExceptSkipsExcluded checks that the excluded task stays
// queued while every other waiter is woken.
func TestWakeAllExceptSkipsExcluded(t *testing.T) {
	rt := setup(t)

	w, _ := butex.Create()
	defer butex.Destroy(w)

	const n = 3
	results := make(chan error, n)
	taskCh := make(chan *sched.Task, n)
	for i := 0; i < n; i++ {
		rt.Go(func(task *sched.Task) {
			taskCh <- task
			results <- butex.Wait(w, 0, nil)
		})
	}

	excluded := <-taskCh
	<-taskCh
	<-taskCh
	time.Sleep(10 * time.Millisecond)

	if woke := butex.WakeAllExcept(w, excluded.ID()); woke != n-1 {
		t.Fatalf("WakeAllExcept: woke %d, want %d", woke, n-1)
	}

	for i := 0; i < n-1; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("Wait: got %v, want nil", err)
			}
		case <-time.After(time.Second):
			t.Fatal("woken waiter never returned")
		}
	}

	select {
	case err := <-results:
		t.Fatalf("excluded task returned early with %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if n := butex.WakeOne(w); n != 1 {
		t.Fatalf("final WakeOne: expected to still find the excluded waiter, got %d", n)
	}
}

// TestRequeueWakesHeadAndMovesRemainder is the broadcast-requeue seed
// scenario: Requeue wakes exactly the longest-waiting task directly and
// relocates every other waiter onto the destination butex without waking
// them, reporting 1. A subsequent WakeAll on the destination then reaches
// the rest.
func TestRequeueWakesHeadAndMovesRemainder(t *testing.T) {
	rt := setup(t)

	from, _ := butex.Create()
	to, _ := butex.Create()
	defer butex.Destroy(from)
	defer butex.Destroy(to)

	const n = 4
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		rt.Go(func(*sched.Task) {
			results <- butex.Wait(from, 0, nil)
		})
	}
	time.Sleep(10 * time.Millisecond)

	if woke := butex.Requeue(from, to); woke != 1 {
		t.Fatalf("Requeue: woke %d, want 1", woke)
	}

	select {
	case err := <-results:
		if err != nil {
			t.Fatalf("Wait: got %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Requeue never woke its head waiter")
	}

	select {
	case <-results:
		t.Fatal("a second waiter resumed from Requeue alone")
	case <-time.After(50 * time.Millisecond):
	}

	to.Store(1)
	if woke := butex.WakeAll(to); woke != n-1 {
		t.Fatalf("WakeAll on destination: woke %d, want %d", woke, n-1)
	}
	for i := 0; i < n-1; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("Wait: got %v, want nil", err)
			}
		case <-time.After(time.Second):
			t.Fatal("requeued waiter never woke")
		}
	}
}

// TestRequeueOnEmptySourceWakesNothing checks the boundary where from has
// no waiters: Requeue must report 0 and move nothing.
func TestRequeueOnEmptySourceWakesNothing(t *testing.T) {
	setup(t)

	from, _ := butex.Create()
	to, _ := butex.Create()
	defer butex.Destroy(from)
	defer butex.Destroy(to)

	if woke := butex.Requeue(from, to); woke != 0 {
		t.Fatalf("Requeue on empty source: got %d, want 0", woke)
	}
}

// TestRefcountedTeardown exercises the AddRefBeforeWake / *AndRemoveRef
// protocol a condition-variable-style caller uses to hand a butex off to a
// wake that might race a destroy of the caller's own state.
func TestRefcountedTeardown(t *testing.T) {
	rt := setup(t)

	w, _ := butex.Create()

	results := make(chan error, 1)
	rt.Go(func(*sched.Task) {
		results <- butex.Wait(w, 0, nil)
	})
	time.Sleep(10 * time.Millisecond)

	butex.AddRefBeforeWake(w)
	w.Store(1)
	if n := butex.WakeOneAndRemoveRef(w); n != 1 {
		t.Fatalf("WakeOneAndRemoveRef: expected 1, got %d", n)
	}

	select {
	case err := <-results:
		if err != nil {
			t.Fatalf("Wait: got %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}

	butex.Destroy(w) // must not block: refcount already drained to zero
}
