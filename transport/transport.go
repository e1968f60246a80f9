// Package transport defines the pluggable byte-frame channel of
// spec.md §2 item 1 and §4.2: opening streams, sending metadata and
// message frames, half-closing, closing the whole channel, and
// subscribing to inbound frames. Concrete transports (the in-process
// loopback in transport/memory, or out-of-scope network adapters)
// implement this interface; the stream engine and call drivers never
// depend on a concrete transport.
package transport

import (
	"context"
	"errors"

	"github.com/meshrpc/meshrpc/metadata"
)

// Role identifies which side of a channel opened a given stream,
// governing the odd/even id discipline of spec.md §4.2.
type Role int

const (
	// Initiator is the side that opened the channel (odd stream ids).
	Initiator Role = iota
	// Acceptor is the other side (even stream ids).
	Acceptor
)

// Kind distinguishes a metadata frame from a message frame on the
// wire. There is no separate "end-of-stream marker" kind: end-of-stream
// is the endStream flag carried on whichever frame closes a send half,
// per spec.md §3's Frame entry.
type Kind int

const (
	KindMetadata Kind = iota
	KindMessage
)

func (k Kind) String() string {
	if k == KindMetadata {
		return "metadata"
	}
	return "message"
}

// Frame is the logical per-stream unit exchanged through a Transport:
// spec.md §3's Frame entity. StreamID is immutable once the frame is
// constructed.
type Frame struct {
	StreamID  uint64
	Kind      Kind
	Metadata  metadata.Metadata
	Payload   []byte
	EndStream bool
}

// ErrClosed is returned by transport operations performed after Close.
var ErrClosed = errors.New("transport: closed")

// ErrUnknownStream is returned when an operation references a stream
// id the transport has no record of.
var ErrUnknownStream = errors.New("transport: unknown stream")

// Transport is a bidirectional, multiplexed byte-frame channel. One
// Transport value represents one side of one channel: the channel
// itself exists only implicitly as the pairing between two Transport
// values (see transport/memory for the in-process case).
type Transport interface {
	// Role reports whether this side allocates odd or even stream ids.
	Role() Role

	// OpenStream allocates a new stream id honoring this side's
	// odd/even discipline and returns it. OpenStream does not itself
	// send any frame; the caller must follow up with SendMetadata.
	OpenStream() (streamID uint64, err error)

	// SendMetadata sends a metadata frame on streamID, optionally
	// closing that stream's send half (endStream).
	SendMetadata(streamID uint64, md metadata.Metadata, endStream bool) error

	// SendMessage sends a single length-delimited message frame on
	// streamID, optionally closing the send half.
	SendMessage(streamID uint64, payload []byte, endStream bool) error

	// CloseSend closes streamID's send half without sending a payload;
	// equivalent to SendMessage(streamID, nil, true) at the framing
	// level but lets transports optimize the empty case.
	CloseSend(streamID uint64) error

	// Subscribe registers a callback invoked for every inbound frame.
	// If streamID is non-zero, only frames for that stream are
	// delivered; streamID == 0 subscribes to all streams (used by a
	// responder's dispatch loop to observe newly opened streams).
	// Subscribe returns an unsubscribe function.
	Subscribe(streamID uint64, fn func(Frame)) (unsubscribe func())

	// Close closes the whole channel: per spec.md §4.6, pending
	// outbound frames are drained before the peer's inbound
	// subscriptions see end-of-input.
	Close() error

	// Done returns a channel closed once the transport has finished
	// closing, for callers that need to observe transport-level
	// termination (spec.md §7: transport close fails every open stream
	// with Unavailable).
	Done() <-chan struct{}

	// Context returns a context canceled when the transport closes.
	Context() context.Context
}

// Options configures a Transport's resource limits, per spec.md §9's
// open question: "a single per-endpoint maxMessageBytes must be the
// authoritative cap and applied in both places" (the frame codec and
// the transport implementation).
type Options struct {
	// MaxMessageBytes caps a single message payload. 0 uses
	// wire.DefaultMaxMessageBytes.
	MaxMessageBytes int

	// InitialWindow is the starting flow-control byte budget (spec.md
	// §4.2 default 10 MiB). 0 uses DefaultInitialWindow.
	InitialWindow int64

	// MaxWindow is the cap flow-control auto-growth may reach (spec.md
	// §4.2 default 100 MiB). 0 uses DefaultMaxWindow.
	MaxWindow int64

	// InboundQueueDepth bounds each stream's inbound frame queue
	// (spec.md §5 default 16 frames). 0 uses DefaultInboundQueueDepth.
	InboundQueueDepth int
}

const (
	DefaultInitialWindow     = 10 << 20  // 10 MiB
	DefaultMaxWindow         = 100 << 20 // 100 MiB
	DefaultInboundQueueDepth = 16
)

// WithDefaults returns a copy of o with every zero field replaced by
// its documented default.
func (o Options) WithDefaults() Options {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 4 << 20
	}
	if o.InitialWindow <= 0 {
		o.InitialWindow = DefaultInitialWindow
	}
	if o.MaxWindow <= 0 {
		o.MaxWindow = DefaultMaxWindow
	}
	if o.InboundQueueDepth <= 0 {
		o.InboundQueueDepth = DefaultInboundQueueDepth
	}
	return o
}
