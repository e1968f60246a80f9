package stream

import (
	"testing"

	"github.com/meshrpc/meshrpc/transport"
)

func TestAllocatorOddEvenDiscipline(t *testing.T) {
	initiator := NewAllocator(transport.Initiator)
	acceptor := NewAllocator(transport.Acceptor)

	for i, want := range []uint64{1, 3, 5} {
		got := initiator.Next()
		if got != want {
			t.Fatalf("initiator.Next()[%d] = %d, want %d", i, got, want)
		}
		if !IsLocal(got, transport.Initiator) {
			t.Fatalf("IsLocal(%d, Initiator) = false", got)
		}
	}

	for i, want := range []uint64{2, 4, 6} {
		got := acceptor.Next()
		if got != want {
			t.Fatalf("acceptor.Next()[%d] = %d, want %d", i, got, want)
		}
		if !IsLocal(got, transport.Acceptor) {
			t.Fatalf("IsLocal(%d, Acceptor) = false", got)
		}
	}
}

func TestAllocatorMonotonicallyIncreasing(t *testing.T) {
	a := NewAllocator(transport.Initiator)
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		id := a.Next()
		if id <= prev {
			t.Fatalf("id %d not strictly greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestIsLocalRejectsZero(t *testing.T) {
	if IsLocal(0, transport.Initiator) || IsLocal(0, transport.Acceptor) {
		t.Fatal("stream id 0 is never valid")
	}
}
