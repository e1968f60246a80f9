package call

import (
	"context"
	"io"

	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/status"
	"github.com/meshrpc/meshrpc/transport"
)

// BidiHandler drives both halves of a bidirectional stream: recv
// yields each inbound request, send emits one response message.
// Returning nil ends the stream with an OK trailer; the handler may
// call send any number of times in any order relative to recv, per
// spec.md §4.3.
type BidiHandler func(ctx context.Context, recv Recv, send Send) error

// BidiCaller is the caller side of a bidirectional call: both Send and
// Recv may be used freely until CloseSend and the trailer, respectively.
type BidiCaller struct {
	tr         transport.Transport
	id         uint64
	cdc        codec.Codec
	d          *duplex
	newResp    func() any
	sendClosed bool
	recvClosed bool
}

// OpenBidiStream opens a fresh stream and sends the initial request
// metadata without closing either half.
func OpenBidiStream(tr transport.Transport, cdc codec.Codec, path string, reqMD metadata.Metadata, newResp func() any) (*BidiCaller, error) {
	id, err := tr.OpenStream()
	if err != nil {
		return nil, err
	}
	if err := tr.SendMetadata(id, withPath(reqMD, path, cdc), false); err != nil {
		return nil, err
	}
	return &BidiCaller{tr: tr, id: id, cdc: cdc, d: newDuplex(tr, id), newResp: newResp}, nil
}

// Send pushes one message on the caller's send half.
func (c *BidiCaller) Send(v any) error {
	if c.sendClosed {
		return status.Errorf(status.FailedPrecondition, "send after close")
	}
	payload, err := c.cdc.Marshal(v)
	if err != nil {
		return status.Errorf(status.InvalidArgument, "encode request: %v", err)
	}
	return c.tr.SendMessage(c.id, payload, false)
}

// CloseSend closes the caller's send half. The responder may continue
// sending responses until it emits the trailer.
func (c *BidiCaller) CloseSend() error {
	if c.sendClosed {
		return nil
	}
	c.sendClosed = true
	return c.tr.CloseSend(c.id)
}

// Recv returns the next decoded response, io.EOF once the trailer
// arrives (emitted by the responder as the final frame), or the
// trailer's error.
func (c *BidiCaller) Recv(ctx context.Context) (any, error) {
	if c.recvClosed {
		return nil, io.EOF
	}
	for {
		select {
		case <-ctx.Done():
			c.Cancel()
			return nil, status.Errorf(status.DeadlineExceeded, "bidi call timed out")
		case fr := <-c.d.frames:
			if fr.Kind == transport.KindMessage {
				resp := c.newResp()
				if err := c.cdc.Unmarshal(fr.Payload, resp); err != nil {
					return nil, status.Errorf(status.Internal, "decode response: %v", err)
				}
				return resp, nil
			}
			if !fr.EndStream {
				continue
			}
			c.recvClosed = true
			st := statusFromTrailer(fr.Metadata)
			if !st.OK() {
				return nil, st.Err()
			}
			return nil, io.EOF
		case <-c.tr.Done():
			c.recvClosed = true
			return nil, status.Errorf(status.Unavailable, "transport closed")
		}
	}
}

// Cancel closes the caller's send half with a cancellation marker and
// stops accepting further responses.
func (c *BidiCaller) Cancel() {
	if c.recvClosed {
		return
	}
	c.recvClosed = true
	cancelStream(c.tr, c.id)
	c.d.close()
}

// ServeBidiStream drives the responder side of a bidirectional call.
// It returns the status sent as the trailer.
func ServeBidiStream(ctx context.Context, tr transport.Transport, id uint64, cdc codec.Codec, newReq func() any, handler BidiHandler) *status.Status {
	d := newDuplex(tr, id)
	defer d.close()

	recv := func() (any, bool, error) {
		for {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case fr := <-d.frames:
				if fr.Kind == transport.KindMessage {
					if fr.EndStream {
						return nil, false, nil
					}
					req := newReq()
					if err := cdc.Unmarshal(fr.Payload, req); err != nil {
						return nil, false, status.Errorf(status.InvalidArgument, "decode request: %v", err)
					}
					return req, true, nil
				}
				if fr.EndStream {
					return nil, false, status.Errorf(status.Cancelled, "cancelled")
				}
			}
		}
	}
	send := func(v any) error {
		out, err := cdc.Marshal(v)
		if err != nil {
			return status.Errorf(status.Internal, "encode response: %v", err)
		}
		return tr.SendMessage(id, out, false)
	}

	if err := handler(ctx, recv, send); err != nil {
		st := status.FromError(err)
		sendTrailer(tr, id, st)
		return st
	}
	st := status.New(status.OK, "")
	sendTrailer(tr, id, st)
	return st
}
