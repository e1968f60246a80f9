package call

import (
	"context"
	"io"

	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/status"
	"github.com/meshrpc/meshrpc/transport"
)

// ServerStreamHandler produces a sequence of responses for one
// request, pushing each through send. Returning nil ends the stream
// with an OK trailer; a non-nil error becomes a non-OK trailer with no
// further messages, per spec.md §4.3.
type ServerStreamHandler func(ctx context.Context, req any, send Send) error

// ServerStreamCaller is the caller side of a server-streaming call: a
// lazy, finite, non-restartable sequence of decoded responses
// terminated by the trailer.
type ServerStreamCaller struct {
	tr      transport.Transport
	id      uint64
	cdc     codec.Codec
	d       *duplex
	newResp func() any
	done    bool
}

// OpenServerStream sends the single request with endStream on a fresh
// stream and returns a caller ready to Recv responses.
func OpenServerStream(tr transport.Transport, cdc codec.Codec, path string, reqMD metadata.Metadata, req any, newResp func() any) (*ServerStreamCaller, error) {
	id, err := tr.OpenStream()
	if err != nil {
		return nil, err
	}
	payload, err := cdc.Marshal(req)
	if err != nil {
		return nil, status.Errorf(status.InvalidArgument, "encode request: %v", err)
	}
	if err := tr.SendMetadata(id, withPath(reqMD, path, cdc), false); err != nil {
		return nil, err
	}
	if err := tr.SendMessage(id, payload, true); err != nil {
		return nil, err
	}
	return &ServerStreamCaller{tr: tr, id: id, cdc: cdc, d: newDuplex(tr, id), newResp: newResp}, nil
}

// Recv returns the next decoded response, io.EOF once the trailer
// arrives with an OK status, or the trailer's error otherwise. A
// server-streaming caller that receives zero messages before an OK
// trailer yields io.EOF immediately, i.e. an empty sequence without
// error.
func (c *ServerStreamCaller) Recv(ctx context.Context) (any, error) {
	if c.done {
		return nil, io.EOF
	}
	for {
		select {
		case <-ctx.Done():
			c.Cancel()
			return nil, status.Errorf(status.DeadlineExceeded, "server-stream call timed out")
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
			c.done = true
			st := statusFromTrailer(fr.Metadata)
			if !st.OK() {
				return nil, st.Err()
			}
			return nil, io.EOF
		case <-c.tr.Done():
			c.done = true
			return nil, status.Errorf(status.Unavailable, "transport closed")
		}
	}
}

// Cancel closes the caller's send half with a cancellation marker.
// Any frames the responder subsequently emits are discarded silently
// per spec.md §4.2, since no further Recv call will observe them.
func (c *ServerStreamCaller) Cancel() {
	if c.done {
		return
	}
	c.done = true
	cancelStream(c.tr, c.id)
	c.d.close()
}

// ServeServerStream drives the responder side: read the single
// request, run handler, send a final trailer. It returns the status
// sent as the trailer, or nil if the caller cancelled before a request
// arrived.
func ServeServerStream(ctx context.Context, tr transport.Transport, id uint64, cdc codec.Codec, newReq func() any, handler ServerStreamHandler) *status.Status {
	d := newDuplex(tr, id)
	defer d.close()

	payload, cancelled, err := recvSingleRequest(ctx, d)
	if cancelled {
		return nil
	}
	if err != nil {
		st := status.FromError(err)
		sendTrailer(tr, id, st)
		return st
	}

	req := newReq()
	if err := cdc.Unmarshal(payload, req); err != nil {
		st := status.New(status.InvalidArgument, "decode request: %v", err)
		sendTrailer(tr, id, st)
		return st
	}

	send := func(v any) error {
		out, err := cdc.Marshal(v)
		if err != nil {
			return status.Errorf(status.Internal, "encode response: %v", err)
		}
		return tr.SendMessage(id, out, false)
	}

	if err := handler(ctx, req, send); err != nil {
		st := status.FromError(err)
		sendTrailer(tr, id, st)
		return st
	}
	st := status.New(status.OK, "")
	sendTrailer(tr, id, st)
	return st
}
