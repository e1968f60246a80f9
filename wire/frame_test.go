package wire

import (
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 255, 4096} {
		payload := bytes.Repeat([]byte{0xAB}, n)
		buf, err := Encode(payload, 0)
		if err != nil {
			t.Fatalf("Encode(%d bytes): %v", n, err)
		}
		fr, rest, ok, err := Decode(buf, 0)
		if err != nil || !ok {
			t.Fatalf("Decode(%d bytes): ok=%v err=%v", n, ok, err)
		}
		if len(rest) != 0 {
			t.Fatalf("Decode left %d unconsumed bytes", len(rest))
		}
		if !bytes.Equal(fr.Payload, payload) {
			t.Fatalf("round-trip mismatch for %d bytes", n)
		}
	}
}

func TestDecodeNeedsMoreBytes(t *testing.T) {
	buf, _ := Encode([]byte("hello"), 0)
	partial := buf[:len(buf)-1]
	_, rest, ok, err := Decode(partial, 0)
	if ok || err != nil {
		t.Fatalf("partial decode: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
	if !bytes.Equal(rest, partial) {
		t.Fatal("partial decode must not consume any input")
	}
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	buf, err := Encode(make([]byte, 10), 5)
	if err == nil {
		t.Fatalf("Encode should reject a payload over cap, got buf=%v", buf)
	}

	// A frame whose declared length field exceeds the cap must fail,
	// even if not all payload bytes have arrived yet.
	oversized := Append(nil, Frame{Payload: make([]byte, 100)})
	_, _, ok, err := Decode(oversized, 10)
	if ok || err == nil {
		t.Fatalf("Decode should reject an oversized frame: ok=%v err=%v", ok, err)
	}
}

func TestDecodeRejectsCompressedFlag(t *testing.T) {
	buf := Append(nil, Frame{Flags: FlagCompressed, Payload: []byte("x")})
	_, _, ok, err := Decode(buf, 0)
	if ok || err == nil {
		t.Fatal("Decode must reject a frame with the compressed bit set")
	}
}

func TestDecoderNext(t *testing.T) {
	var buf []byte
	buf = Append(buf, Frame{Payload: []byte("one")})
	buf = Append(buf, Frame{Payload: []byte("two")})

	d := NewDecoder(bytes.NewReader(buf), 0)
	fr1, err := d.Next()
	if err != nil || string(fr1.Payload) != "one" {
		t.Fatalf("first frame = %q, err = %v", fr1.Payload, err)
	}
	fr2, err := d.Next()
	if err != nil || string(fr2.Payload) != "two" {
		t.Fatalf("second frame = %q, err = %v", fr2.Payload, err)
	}
	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
