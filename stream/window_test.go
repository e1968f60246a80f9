package stream

import (
	"testing"
	"time"
)

func TestWindowAcquireRelease(t *testing.T) {
	w := NewWindow(100, 1000)
	if err := w.Acquire(50); err != nil {
		t.Fatalf("Acquire(50): %v", err)
	}
	w.Release(50)
	if err := w.Acquire(100); err != nil {
		t.Fatalf("Acquire(100) after release: %v", err)
	}
}

func TestWindowBlocksUntilEnoughReleased(t *testing.T) {
	w := NewWindow(10, 1000)
	done := make(chan error, 1)
	go func() { done <- w.Acquire(500) }()

	select {
	case <-done:
		t.Fatal("Acquire(500) on a window with 10 available should block")
	case <-time.After(50 * time.Millisecond):
	}

	w.Release(490)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire(500) once enough was released: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock once enough was released")
	}
}

func TestWindowRejectsOverCap(t *testing.T) {
	w := NewWindow(10, 100)
	if err := w.Acquire(101); err == nil {
		t.Fatal("Acquire(101) with cap=100 must fail")
	}
}

func TestWindowBlocksUntilReleased(t *testing.T) {
	w := NewWindow(10, 10)
	if err := w.Acquire(10); err != nil {
		t.Fatalf("Acquire(10): %v", err)
	}
	acquired := make(chan error, 1)
	go func() { acquired <- w.Acquire(10) }()

	select {
	case <-acquired:
		t.Fatal("second Acquire should block until Release")
	case <-time.After(50 * time.Millisecond):
	}

	w.Release(10)
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("Acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after Release")
	}
}

func TestWindowCloseUnblocksWaiters(t *testing.T) {
	w := NewWindow(1, 1)
	if err := w.Acquire(1); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- w.Acquire(1) }()
	time.Sleep(20 * time.Millisecond)
	w.Close()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Acquire should fail once the window is closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock waiting Acquire")
	}
}
