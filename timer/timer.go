// Package timer provides the external timer-service collaborator that
// butex's deadline-driven wait path consumes: schedule a callback to run
// at an absolute deadline, and cancel it before it runs if possible.
//
// This plays the role of bthread's TimerThread: a single background
// goroutine drains a min-heap of pending callbacks, invoking each at its
// deadline. No ecosystem timer-wheel library appears anywhere in this
// module's retrieval pack, so the heap is built directly on the standard
// library's container/heap, the same way the rest of this module reaches
// for container/heap-shaped tools only when nothing in the pack offers
// one.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type state int32

const (
	pending state = iota
	running
	finished
	cancelled
)

type entry struct {
	id       uint64
	deadline time.Time
	cb       func()
	state    state
	index    int // heap.Interface bookkeeping
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Service is a single background timer goroutine managing pending
// callbacks, analogous to bthread's global TimerThread.
type Service struct {
	mu      sync.Mutex
	byID    map[uint64]*entry
	heap    entryHeap
	nextID  uint64
	stopped bool
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New starts a timer service. Call Stop to shut it down.
func New() *Service {
	s := &Service{
		byID:   make(map[uint64]*entry),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Schedule arranges for cb to run once, on the service's own goroutine, at
// deadline. It returns id == 0 and ok == false if the service has been
// stopped, the same way the original's TimerThread rejects new timers once
// it has been asked to shut down.
func (s *Service) Schedule(deadline time.Time, cb func()) (id uint64, ok bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, false
	}
	s.nextID++
	id = s.nextID
	e := &entry{id: id, deadline: deadline, cb: cb, state: pending}
	s.byID[id] = e
	heap.Push(&s.heap, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return id, true
}

// Unschedule cancels a pending callback before it runs. It returns 0 if
// the callback was cancelled before running, +1 if the callback is
// currently running (the caller must wait for it to finish touching
// whatever it shares with the caller), or -1 if the callback already
// finished (or the id is unknown).
func (s *Service) Unschedule(id uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return -1
	}
	switch e.state {
	case pending:
		heap.Remove(&s.heap, e.index)
		delete(s.byID, id)
		e.state = cancelled
		return 0
	case running:
		return 1
	default: // finished or cancelled
		return -1
	}
}

// Stop shuts the service down. Callbacks already running are allowed to
// finish; no new ones are started.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stopCh)
	<-s.doneCh
}

func (s *Service) loop() {
	defer close(s.doneCh)

	for {
		s.mu.Lock()
		now := time.Now()
		for len(s.heap) > 0 && !s.heap[0].deadline.After(now) {
			e := heap.Pop(&s.heap).(*entry)
			e.state = running
			s.mu.Unlock()

			e.cb()

			s.mu.Lock()
			e.state = finished
			delete(s.byID, e.id)
		}
		wait := time.Hour
		if len(s.heap) > 0 {
			if d := s.heap[0].deadline.Sub(time.Now()); d > 0 {
				wait = d
			} else {
				wait = 0
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}
