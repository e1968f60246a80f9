package server

import (
	"context"

	"github.com/meshrpc/meshrpc/call"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/status"
)

// CallInfo describes the call a middleware is observing, per spec.md
// §4.5: the call shape, the (service, method) it resolved to, the
// caller's initial metadata, and the stream it is running on.
type CallInfo struct {
	Kind     call.Kind
	Service  string
	Method   string
	Metadata metadata.Metadata
	StreamID uint64
}

// Middleware observes one handler invocation from three hook points.
// Implementations MUST NOT mutate payload bytes; they may replace
// metadata and short-circuit the call by returning a non-nil status
// from PreHandle.
type Middleware interface {
	// PreHandle runs before the handler, in registration order. A
	// non-nil returned status short-circuits the call: the handler is
	// never invoked and this status becomes the trailer.
	PreHandle(ctx context.Context, info CallInfo) *status.Status
	// PostHandle runs after a handler invocation that ended OK, in
	// reverse registration order.
	PostHandle(ctx context.Context, info CallInfo)
	// OnError runs when the call ends with a non-OK status, whether
	// from a PreHandle short-circuit or a handler failure, in reverse
	// registration order.
	OnError(ctx context.Context, info CallInfo, st *status.Status)
}

// chain drives an ordered list of middlewares around one call,
// matching spec.md §4.5's "pre-order on entry and reverse-order on
// exit".
type chain struct {
	mws []Middleware
}

// before runs PreHandle pre-order, stopping at the first short-circuit
// status. entered is how many middlewares actually ran PreHandle, so
// after() unwinds exactly those on exit.
func (c chain) before(ctx context.Context, info CallInfo) (entered int, short *status.Status) {
	for _, mw := range c.mws {
		entered++
		if st := mw.PreHandle(ctx, info); st != nil {
			return entered, st
		}
	}
	return entered, nil
}

// after runs PostHandle (st is OK) or OnError (st is not OK) in
// reverse order over the first `entered` middlewares.
func (c chain) after(ctx context.Context, info CallInfo, entered int, st *status.Status) {
	for i := entered - 1; i >= 0; i-- {
		if st.OK() {
			c.mws[i].PostHandle(ctx, info)
		} else {
			c.mws[i].OnError(ctx, info, st)
		}
	}
}
