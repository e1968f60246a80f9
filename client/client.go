// Package client implements the caller side of spec.md §4.3: a thin
// Endpoint wrapping a transport.Transport and a codec, exposing one
// method per call shape. Construction mirrors the teacher's
// client.go/NewClient pattern (controller/api/public/client.go),
// generalized from a single grpc.ClientConn to meshrpc's pluggable
// Transport.
package client

import (
	"context"
	"time"

	"github.com/meshrpc/meshrpc/call"
	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/transport"
)

// Endpoint is the caller side of one transport: every call it opens is
// a fresh stream on that transport.
type Endpoint struct {
	tr  transport.Transport
	cdc codec.Codec
}

// New builds a caller Endpoint over tr, encoding/decoding with cdc.
func New(tr transport.Transport, cdc codec.Codec) *Endpoint {
	return &Endpoint{tr: tr, cdc: cdc}
}

// Invoke drives a unary call to path. If timeout is positive, the call
// fails with deadline-exceeded and the stream is cancelled if the
// responder has not replied in time.
func (e *Endpoint) Invoke(ctx context.Context, path string, md metadata.Metadata, req any, newResp func() any, timeout time.Duration) (any, error) {
	return call.InvokeUnary(ctx, e.tr, e.cdc, path, md, req, newResp, timeout)
}

// NewServerStream opens a server-streaming call: one request, a lazy
// finite sequence of responses.
func (e *Endpoint) NewServerStream(path string, md metadata.Metadata, req any, newResp func() any) (*call.ServerStreamCaller, error) {
	return call.OpenServerStream(e.tr, e.cdc, path, md, req, newResp)
}

// NewClientStream opens a client-streaming call: a push sink for
// request messages plus a single-shot future for the response.
func (e *Endpoint) NewClientStream(path string, md metadata.Metadata, newResp func() any) (*call.ClientStreamCaller, error) {
	return call.OpenClientStream(e.tr, e.cdc, path, md, newResp)
}

// NewBidiStream opens a bidirectional call: both send and receive may
// be used freely until each side closes its half.
func (e *Endpoint) NewBidiStream(path string, md metadata.Metadata, newResp func() any) (*call.BidiCaller, error) {
	return call.OpenBidiStream(e.tr, e.cdc, path, md, newResp)
}

// Transport returns the underlying transport, for callers that need to
// observe its lifecycle (Done, Close) directly — e.g. the router.Client
// SDK binding its heartbeat loop to transport closure.
func (e *Endpoint) Transport() transport.Transport { return e.tr }
