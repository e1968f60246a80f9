package call

import (
	"context"

	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/status"
	"github.com/meshrpc/meshrpc/transport"
)

// ClientStreamHandler receives the lazy, finite request sequence
// through recv and returns the one response emitted together with the
// trailer, per spec.md §4.3.
type ClientStreamHandler func(ctx context.Context, recv Recv) (any, error)

// ClientStreamCaller is the caller side of a client-streaming call: a
// push sink for request messages plus a single-shot future for the
// response.
type ClientStreamCaller struct {
	tr       transport.Transport
	id       uint64
	cdc      codec.Codec
	d        *duplex
	newResp  func() any
	finished bool
}

// OpenClientStream opens a fresh stream and sends the initial request
// metadata; the caller then pushes request messages with Send before
// calling CloseAndRecv.
func OpenClientStream(tr transport.Transport, cdc codec.Codec, path string, reqMD metadata.Metadata, newResp func() any) (*ClientStreamCaller, error) {
	id, err := tr.OpenStream()
	if err != nil {
		return nil, err
	}
	if err := tr.SendMetadata(id, withPath(reqMD, path, cdc), false); err != nil {
		return nil, err
	}
	return &ClientStreamCaller{tr: tr, id: id, cdc: cdc, d: newDuplex(tr, id), newResp: newResp}, nil
}

// Send pushes one request message.
func (c *ClientStreamCaller) Send(v any) error {
	if c.finished {
		return status.Errorf(status.FailedPrecondition, "send after finish")
	}
	payload, err := c.cdc.Marshal(v)
	if err != nil {
		return status.Errorf(status.InvalidArgument, "encode request: %v", err)
	}
	return c.tr.SendMessage(c.id, payload, false)
}

// CloseAndRecv closes the send half (a single endStream frame carrying
// no payload) and awaits the single response and trailer.
func (c *ClientStreamCaller) CloseAndRecv(ctx context.Context) (any, error) {
	if !c.finished {
		c.finished = true
		if err := c.tr.CloseSend(c.id); err != nil {
			return nil, err
		}
	}
	defer c.d.close()

	var gotMessage []byte
	var haveMessage bool
	for {
		select {
		case <-ctx.Done():
			cancelStream(c.tr, c.id)
			return nil, status.Errorf(status.DeadlineExceeded, "client-stream call timed out")
		case fr := <-c.d.frames:
			if fr.Kind == transport.KindMessage {
				haveMessage = true
				gotMessage = fr.Payload
				continue
			}
			if !fr.EndStream {
				continue
			}
			st := statusFromTrailer(fr.Metadata)
			if !st.OK() {
				return nil, st.Err()
			}
			if !haveMessage {
				return nil, status.Errorf(status.Internal, "client-stream response missing message")
			}
			resp := c.newResp()
			if err := c.cdc.Unmarshal(gotMessage, resp); err != nil {
				return nil, status.Errorf(status.Internal, "decode response: %v", err)
			}
			return resp, nil
		case <-c.tr.Done():
			return nil, status.Errorf(status.Unavailable, "transport closed")
		}
	}
}

// ServeClientStream drives the responder side: hand the handler a recv
// closure over the request sequence, then emit its single response and
// a trailer. It returns the status sent as the trailer.
func ServeClientStream(ctx context.Context, tr transport.Transport, id uint64, cdc codec.Codec, newReq func() any, handler ClientStreamHandler) *status.Status {
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

	resp, err := handler(ctx, recv)
	if err != nil {
		st := status.FromError(err)
		sendTrailer(tr, id, st)
		return st
	}
	out, err := cdc.Marshal(resp)
	if err != nil {
		st := status.New(status.Internal, "encode response: %v", err)
		sendTrailer(tr, id, st)
		return st
	}
	if err := tr.SendMessage(id, out, false); err != nil {
		return status.New(status.Unavailable, "send response: %v", err)
	}
	st := status.New(status.OK, "")
	sendTrailer(tr, id, st)
	return st
}
