package memory

import (
	"testing"
	"time"

	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/transport"
)

func waitFrame(t *testing.T, ch chan transport.Frame) transport.Frame {
	t.Helper()
	select {
	case fr := <-ch:
		return fr
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return transport.Frame{}
}

func TestOpenStreamIDDiscipline(t *testing.T) {
	a, b := NewPair(transport.Options{})
	defer a.Close()
	defer b.Close()

	if a.Role() != transport.Initiator || b.Role() != transport.Acceptor {
		t.Fatal("NewPair must return (initiator, acceptor)")
	}

	id1, err := a.OpenStream()
	if err != nil || id1 != 1 {
		t.Fatalf("a.OpenStream() = %d, %v, want 1", id1, err)
	}
	id2, err := a.OpenStream()
	if err != nil || id2 != 3 {
		t.Fatalf("a.OpenStream() = %d, %v, want 3", id2, err)
	}
	id3, err := b.OpenStream()
	if err != nil || id3 != 2 {
		t.Fatalf("b.OpenStream() = %d, %v, want 2", id3, err)
	}
}

func TestSendMetadataAndMessageDeliveredInOrder(t *testing.T) {
	a, b := NewPair(transport.Options{})
	defer a.Close()
	defer b.Close()

	id, _ := a.OpenStream()
	received := make(chan transport.Frame, 8)
	b.Subscribe(id, func(fr transport.Frame) { received <- fr })

	md := metadata.New(":path", "/Echo/Echo")
	if err := a.SendMetadata(id, md, false); err != nil {
		t.Fatalf("SendMetadata: %v", err)
	}
	if err := a.SendMessage(id, []byte("one"), false); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := a.SendMessage(id, []byte("two"), true); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	f1 := waitFrame(t, received)
	if f1.Kind != transport.KindMetadata {
		t.Fatalf("first frame kind = %v, want metadata", f1.Kind)
	}
	f2 := waitFrame(t, received)
	if string(f2.Payload) != "one" {
		t.Fatalf("second frame payload = %q, want one", f2.Payload)
	}
	f3 := waitFrame(t, received)
	if string(f3.Payload) != "two" || !f3.EndStream {
		t.Fatalf("third frame = %q endStream=%v, want two/true", f3.Payload, f3.EndStream)
	}
}

func TestCatchAllSubscriberSeesAllStreams(t *testing.T) {
	a, b := NewPair(transport.Options{})
	defer a.Close()
	defer b.Close()

	var seen []uint64
	done := make(chan struct{}, 2)
	b.Subscribe(0, func(fr transport.Frame) {
		seen = append(seen, fr.StreamID)
		done <- struct{}{}
	})

	id1, _ := a.OpenStream()
	a.SendMetadata(id1, metadata.New(), true)
	id2, _ := a.OpenStream()
	a.SendMetadata(id2, metadata.New(), true)

	<-done
	<-done
	if len(seen) != 2 {
		t.Fatalf("catch-all subscriber saw %d frames, want 2", len(seen))
	}
}

func TestCloseUnblocksPeer(t *testing.T) {
	a, b := NewPair(transport.Options{})
	id, _ := a.OpenStream()
	a.SendMetadata(id, metadata.New(), false)

	a.Close()

	select {
	case <-b.Done():
		t.Fatal("Done() should only fire for the side that closed, not its peer")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-b.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("peer's context must be cancelled once the other side closes")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	a, b := NewPair(transport.Options{})
	defer b.Close()
	id, _ := a.OpenStream()
	a.Close()
	if err := a.SendMessage(id, []byte("x"), true); err == nil {
		t.Fatal("SendMessage after Close must fail")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	a, b := NewPair(transport.Options{})
	defer a.Close()
	defer b.Close()

	id, _ := a.OpenStream()
	received := make(chan transport.Frame, 8)
	unsub := b.Subscribe(id, func(fr transport.Frame) { received <- fr })
	unsub()

	a.SendMetadata(id, metadata.New(), true)
	select {
	case <-received:
		t.Fatal("unsubscribed handler should not receive frames")
	case <-time.After(50 * time.Millisecond):
	}
}
