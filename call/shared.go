// Package call implements the four RPC call-shape drivers of
// spec.md §4.3 on top of a raw transport.Transport stream: unary,
// server-streaming, client-streaming and bidirectional, each with a
// caller half (client.Endpoint) and a responder half
// (server.Endpoint's dispatch). Drivers never know about a service registry or
// a network address; they only know how to drive one stream to
// completion against an already-opened transport.Transport.
package call

import (
	"context"
	"strconv"

	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/status"
	"github.com/meshrpc/meshrpc/transport"
)

// Kind identifies which of the four call shapes a stream drives.
type Kind int

const (
	Unary Kind = iota
	ServerStream
	ClientStream
	Bidi
)

func (k Kind) String() string {
	switch k {
	case Unary:
		return "unary"
	case ServerStream:
		return "server-stream"
	case ClientStream:
		return "client-stream"
	case Bidi:
		return "bidi"
	default:
		return "unknown"
	}
}

// Send pushes one encoded message on the stream the closure was built
// for.
type Send func(v any) error

// Recv yields the next decoded inbound value. ok is false once the
// peer has closed its send half; a non-nil err means the stream failed
// or was cancelled rather than ending cleanly.
type Recv func() (v any, ok bool, err error)

// duplex funnels one stream's inbound frames into a buffered channel
// so driver code can select over it instead of touching the
// transport's subscriber callback directly. One duplex is created per
// call, mirroring one inbound-demultiplex task per stream (spec.md §5).
type duplex struct {
	frames      chan transport.Frame
	unsubscribe func()
}

func newDuplex(tr transport.Transport, id uint64) *duplex {
	d := &duplex{frames: make(chan transport.Frame, 32)}
	d.unsubscribe = tr.Subscribe(id, func(fr transport.Frame) {
		d.frames <- fr
	})
	return d
}

func (d *duplex) close() { d.unsubscribe() }

// withPath stamps the initial caller metadata with :path and a
// content-type default of the codec's name, per spec.md §6.
func withPath(md metadata.Metadata, path string, cdc codec.Codec) metadata.Metadata {
	md = md.With(metadata.PathHeader, path)
	if _, ok := md.Get(metadata.ContentTypeHeader); !ok {
		md = md.With(metadata.ContentTypeHeader, cdc.Name())
	}
	return md
}

// TrailerMetadata builds the final metadata frame carrying a status,
// per spec.md §6's grpc-status/grpc-message headers. Exported for
// callers (the dispatcher) that need to close a stream with a status
// before any call driver has been invoked for it.
func TrailerMetadata(st *status.Status) metadata.Metadata {
	return trailerMetadata(st)
}

func trailerMetadata(st *status.Status) metadata.Metadata {
	md := metadata.New(metadata.StatusHeader, strconv.Itoa(int(st.Code)))
	if st.Message != "" {
		md = md.With(metadata.MessageHeader, st.Message)
	}
	return md
}

// statusFromTrailer recovers the status carried by a trailer frame's
// metadata, treating a missing grpc-status header as the "internal/
// incomplete" case spec.md §4.2 requires of callers.
func statusFromTrailer(md metadata.Metadata) *status.Status {
	raw, ok := md.Get(metadata.StatusHeader)
	if !ok {
		return status.New(status.Internal, "trailer missing status")
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return status.New(status.Internal, "trailer carried malformed status %q", raw)
	}
	msg, _ := md.Get(metadata.MessageHeader)
	return &status.Status{Code: status.Code(code), Message: msg}
}

// sendTrailer emits the final metadata frame for id.
func sendTrailer(tr transport.Transport, id uint64, st *status.Status) {
	_ = tr.SendMetadata(id, trailerMetadata(st), true)
}

// cancelStream closes the caller's send half with the reset marker of
// spec.md §4.2: a metadata frame carrying status=cancelled.
func cancelStream(tr transport.Transport, id uint64) {
	_ = tr.SendMetadata(id, trailerMetadata(status.New(status.Cancelled, "cancelled")), true)
}

// recvSingleRequest waits for the caller's one required request
// message and the end of its send half, enforcing the unary/
// server-stream shape of spec.md §4.3: a second message is a shape
// violation, and a cancellation marker arriving before any message
// reports cancelled=true with no error so the responder can exit
// silently instead of sending a trailer to a peer that already hung
// up.
func recvSingleRequest(ctx context.Context, d *duplex) (payload []byte, cancelled bool, err error) {
	var got bool
	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case fr := <-d.frames:
			if fr.Kind == transport.KindMessage {
				if got {
					return nil, false, status.Errorf(status.InvalidArgument, "request carried more than one message")
				}
				got = true
				payload = fr.Payload
				if fr.EndStream {
					return payload, false, nil
				}
				continue
			}
			if fr.EndStream {
				if statusFromTrailer(fr.Metadata).Code == status.Cancelled {
					return nil, true, nil
				}
				return nil, false, status.Errorf(status.InvalidArgument, "request ended before a message was sent")
			}
		}
	}
}
