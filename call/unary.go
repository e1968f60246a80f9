package call

import (
	"context"
	"time"

	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/status"
	"github.com/meshrpc/meshrpc/transport"
)

// UnaryHandler invokes a unary method with the decoded request and
// returns the response to encode, per spec.md §4.3.
type UnaryHandler func(ctx context.Context, req any) (any, error)

// InvokeUnary drives the caller side of a unary call: open a stream,
// send one request with endStream, await exactly one message and a
// trailer. If timeout is positive it bounds the whole call, failing it
// with deadline-exceeded and cancelling the stream on expiry.
func InvokeUnary(ctx context.Context, tr transport.Transport, cdc codec.Codec, path string, reqMD metadata.Metadata, req any, newResp func() any, timeout time.Duration) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id, err := tr.OpenStream()
	if err != nil {
		return nil, err
	}
	d := newDuplex(tr, id)
	defer d.close()

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

	var gotMessage []byte
	var haveMessage bool
	for {
		select {
		case <-ctx.Done():
			cancelStream(tr, id)
			return nil, status.Errorf(status.DeadlineExceeded, "unary call timed out")
		case fr := <-d.frames:
			if fr.Kind == transport.KindMessage {
				if haveMessage {
					return nil, status.Errorf(status.InvalidArgument, "unary response carried more than one message")
				}
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
				return nil, status.Errorf(status.Internal, "unary response missing message")
			}
			resp := newResp()
			if err := cdc.Unmarshal(gotMessage, resp); err != nil {
				return nil, status.Errorf(status.Internal, "decode response: %v", err)
			}
			return resp, nil
		case <-tr.Done():
			return nil, status.Errorf(status.Unavailable, "transport closed")
		}
	}
}

// ServeUnary drives the responder side of a unary call on an inbound
// stream already bound to id: read exactly one message, invoke
// handler, send the response and a trailer. Handler errors become a
// non-OK trailer with no response message, per spec.md §4.3. ServeUnary
// returns the status it sent as the trailer, or nil if the caller
// cancelled before a request arrived (in which case no trailer is
// sent at all).
func ServeUnary(ctx context.Context, tr transport.Transport, id uint64, cdc codec.Codec, newReq func() any, handler UnaryHandler) *status.Status {
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

	resp, err := handler(ctx, req)
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
