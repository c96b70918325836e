package reactor

import (
	"testing"
	"time"
)

func TestAfterFires(t *testing.T) {
	done := make(chan struct{})
	After(10*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for After callback")
	}
}

func TestAfterCancelPreventsCallback(t *testing.T) {
	fired := make(chan struct{}, 1)
	cancel := After(50*time.Millisecond, func() { fired <- struct{}{} })
	cancel()
	select {
	case <-fired:
		t.Fatalf("expected callback not to fire after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFutureResolveOnce(t *testing.T) {
	f := NewFuture[int]()
	f.Resolve(42)
	f.Resolve(7) // no-op
	done := make(chan struct{})
	v, err := f.Wait(time.Second, done)
	if err != nil || v != 42 {
		t.Fatalf("expected (42, nil), got (%v, %v)", v, err)
	}
}

func TestFutureWaitTimesOut(t *testing.T) {
	f := NewFuture[int]()
	done := make(chan struct{})
	_, err := f.Wait(10*time.Millisecond, done)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCoalesceCollapsesBurst(t *testing.T) {
	var count int
	ch := make(chan struct{}, 10)
	trigger := Coalesce(func() {
		count++
		ch <- struct{}{}
	})
	trigger()
	trigger()
	trigger()
	<-ch
	time.Sleep(20 * time.Millisecond)
	if count != 1 {
		t.Fatalf("expected exactly one coalesced invocation, got %d", count)
	}
}
