// Package wire implements the message-frame codec of spec.md §4.1: a
// single message frame is `[flags:1][length:4 BE][payload:length]`.
// This is the format any out-of-scope byte-socket wire adapter
// (HTTP/2, WebSocket, cross-process) must honor when it frames
// message payloads inside meshrpc's data channel. Headers are never
// part of this codec — they travel on the transport's metadata
// channel (see package metadata).
//
// Decoding is restartable: Decode never blocks and never consumes
// input it cannot fully parse, matching the drpcwire.ParseFrame shape
// this is grounded on (storj.io/drpc, vendored in the pack's rclone
// copy) adapted to the spec's fixed-width length-prefixed layout
// instead of drpc's varint one.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FlagCompressed is reserved for a future compression scheme. The
// core never sets it; a decoder that does not know how to
// decompress MUST reject a frame with this bit set.
const FlagCompressed = 1 << 0

// DefaultMaxMessageBytes is the per-message cap applied when no
// explicit cap is configured (spec.md §4.1 default of 4 MiB).
const DefaultMaxMessageBytes = 4 << 20

// HeaderLen is the fixed 5-byte flags+length prefix.
const HeaderLen = 5

// Frame is a single decoded message frame.
type Frame struct {
	Flags   byte
	Payload []byte
}

// Compressed reports whether the compressed flag bit is set.
func (f Frame) Compressed() bool {
	return f.Flags&FlagCompressed != 0
}

// Append encodes fr and appends it to buf, returning the extended
// slice. It never fails: callers are responsible for enforcing a
// message-size cap on the way in (Encode does this for them).
func Append(buf []byte, fr Frame) []byte {
	var hdr [HeaderLen]byte
	hdr[0] = fr.Flags
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(fr.Payload)))
	buf = append(buf, hdr[:]...)
	buf = append(buf, fr.Payload...)
	return buf
}

// Encode encodes a single message frame, rejecting payloads that
// exceed maxMessageBytes with an error (the fatal stream-level error
// spec.md §4.1 requires). A maxMessageBytes of 0 uses
// DefaultMaxMessageBytes.
func Encode(payload []byte, maxMessageBytes int) ([]byte, error) {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	if len(payload) > maxMessageBytes {
		return nil, fmt.Errorf("wire: message of %d bytes exceeds cap of %d bytes", len(payload), maxMessageBytes)
	}
	return Append(nil, Frame{Payload: payload}), nil
}

// Decode attempts to parse a single frame from the front of buf.
//
// If there are not yet enough bytes buffered for a complete frame, ok
// is false and err is nil: the caller should accumulate more bytes and
// retry (the "need more bytes" case of spec.md §4.1). If the declared
// length exceeds maxMessageBytes, err is non-nil and the stream must be
// failed — this is a fatal framing error, not a partial read. A
// maxMessageBytes of 0 uses DefaultMaxMessageBytes.
func Decode(buf []byte, maxMessageBytes int) (fr Frame, rest []byte, ok bool, err error) {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	if len(buf) < HeaderLen {
		return Frame{}, buf, false, nil
	}
	flags := buf[0]
	length := binary.BigEndian.Uint32(buf[1:HeaderLen])
	if length > uint32(maxMessageBytes) {
		return Frame{}, buf, false, fmt.Errorf("wire: frame length %d exceeds cap of %d bytes", length, maxMessageBytes)
	}
	if flags&FlagCompressed != 0 {
		return Frame{}, buf, false, fmt.Errorf("wire: compressed frames are not supported by this core")
	}
	if uint32(len(buf)-HeaderLen) < length {
		return Frame{}, buf, false, nil
	}
	payload := make([]byte, length)
	copy(payload, buf[HeaderLen:HeaderLen+length])
	rest = buf[HeaderLen+length:]
	return Frame{Flags: flags, Payload: payload}, rest, true, nil
}

// Decoder incrementally decodes frames from an io.Reader, for
// byte-socket wire adapters (outside this core's scope, but this type
// is the minimum building block such an adapter needs).
type Decoder struct {
	r               io.Reader
	buf             []byte
	maxMessageBytes int
}

// NewDecoder returns a Decoder reading length-delimited frames from r.
// A maxMessageBytes of 0 uses DefaultMaxMessageBytes.
func NewDecoder(r io.Reader, maxMessageBytes int) *Decoder {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	return &Decoder{r: r, maxMessageBytes: maxMessageBytes}
}

// Next reads and returns the next frame, blocking on the underlying
// reader as needed, or returns the reader's error (io.EOF on clean
// close).
func (d *Decoder) Next() (Frame, error) {
	for {
		fr, rest, ok, err := Decode(d.buf, d.maxMessageBytes)
		if err != nil {
			return Frame{}, err
		}
		if ok {
			d.buf = rest
			return fr, nil
		}
		chunk := make([]byte, 4096)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
		}
		if err != nil {
			if n > 0 {
				// try once more to drain a frame that completed exactly at EOF
				if fr, rest, ok, derr := Decode(d.buf, d.maxMessageBytes); ok {
					d.buf = rest
					return fr, nil
				} else if derr != nil {
					return Frame{}, derr
				}
			}
			return Frame{}, err
		}
	}
}
