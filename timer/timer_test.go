package timer

import (
	"testing"
	"time"
)

func TestScheduleFires(t *testing.T) {
	s := New()
	defer s.Stop()

	fired := make(chan struct{}, 1)
	_, ok := s.Schedule(time.Now().Add(10*time.Millisecond), func() {
		fired <- struct{}{}
	})
	if !ok {
		t.Fatal("Schedule failed")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestUnscheduleBeforeFire(t *testing.T) {
	s := New()
	defer s.Stop()

	id, ok := s.Schedule(time.Now().Add(time.Hour), func() {
		t.Error("callback should not have run")
	})
	if !ok {
		t.Fatal("Schedule failed")
	}
	if rc := s.Unschedule(id); rc != 0 {
		t.Fatalf("expected Unschedule rc 0, got %d", rc)
	}
	if rc := s.Unschedule(id); rc != -1 {
		t.Fatalf("expected second Unschedule rc -1, got %d", rc)
	}
}

func TestUnscheduleAfterFire(t *testing.T) {
	s := New()
	defer s.Stop()

	done := make(chan struct{})
	id, _ := s.Schedule(time.Now().Add(5*time.Millisecond), func() {
		close(done)
	})
	<-done
	time.Sleep(5 * time.Millisecond) // let loop() mark it finished
	if rc := s.Unschedule(id); rc != -1 {
		t.Fatalf("expected rc -1 for an already-fired timer, got %d", rc)
	}
}

func TestScheduleAfterStopFails(t *testing.T) {
	s := New()
	s.Stop()
	if _, ok := s.Schedule(time.Now().Add(time.Millisecond), func() {}); ok {
		t.Fatal("expected Schedule to fail after Stop")
	}
}
