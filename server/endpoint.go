package server

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/meshrpc/meshrpc/call"
	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/status"
	"github.com/meshrpc/meshrpc/transport"
)

// Endpoint is a responder: it owns a registry, a codec and an ordered
// middleware chain, and drives every inbound stream on the transports
// bound to it to completion. One inbound stream maps to one driver
// instance and one handler invocation, per spec.md §4.4. Endpoint
// holds no ambient logger state (spec.md §9) — it is always
// constructed with an explicit *logrus.Entry.
type Endpoint struct {
	registry *Registry
	codec    codec.Codec
	chain    chain
	log      *logrus.Entry

	mu    sync.Mutex
	bound map[transport.Transport]func()
}

// NewEndpoint builds a responder endpoint over reg, encoding/decoding
// with cdc, running every middleware in mws around each handler
// invocation in registration order.
func NewEndpoint(reg *Registry, cdc codec.Codec, log *logrus.Entry, mws ...Middleware) *Endpoint {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Endpoint{
		registry: reg,
		codec:    cdc,
		chain:    chain{mws: mws},
		log:      log.WithField("component", "server.Endpoint"),
		bound:    make(map[transport.Transport]func()),
	}
}

// Serve accepts inbound streams on tr until ctx is cancelled or tr
// closes. It returns immediately; dispatch runs in background
// goroutines, one per stream, matching spec.md §5's "one task per
// stream".
func (e *Endpoint) Serve(ctx context.Context, tr transport.Transport) {
	var mu sync.Mutex
	seen := make(map[uint64]bool)

	unsubscribe := tr.Subscribe(0, func(fr transport.Frame) {
		if fr.Kind != transport.KindMetadata || fr.EndStream {
			return
		}
		mu.Lock()
		if seen[fr.StreamID] {
			mu.Unlock()
			return
		}
		seen[fr.StreamID] = true
		mu.Unlock()
		go e.dispatch(ctx, tr, fr.StreamID, fr.Metadata)
	})

	e.mu.Lock()
	e.bound[tr] = unsubscribe
	e.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-tr.Done():
		}
		e.mu.Lock()
		if u, ok := e.bound[tr]; ok {
			u()
			delete(e.bound, tr)
		}
		e.mu.Unlock()
	}()
}

// dispatch parses the stream's initial metadata into (service,
// method), looks it up, and drives the matching call driver. Handler
// panics are not recovered here by design: spec.md only asks the
// dispatcher to catch handler *errors*, and Go handlers that wish to
// convert a panic into a status should recover it themselves, matching
// how Go http/grpc handlers are written in the teacher's own style.
func (e *Endpoint) dispatch(ctx context.Context, tr transport.Transport, id uint64, initialMD metadata.Metadata) {
	path, _ := initialMD.Get(metadata.PathHeader)
	service, method, ok := metadata.ParsePath(path)
	if !ok {
		e.reject(tr, id, status.New(status.InvalidArgument, "malformed :path %q", path))
		return
	}

	entry, ok := e.registry.Lookup(service, method)
	if !ok {
		e.log.WithFields(logrus.Fields{"service": service, "method": method}).Debug("dispatch: no method registered")
		e.reject(tr, id, status.New(status.Unimplemented, "unknown method %s/%s", service, method))
		return
	}

	info := CallInfo{Kind: entry.Kind, Service: service, Method: method, Metadata: initialMD, StreamID: id}
	entered, short := e.chain.before(ctx, info)
	if short != nil {
		e.reject(tr, id, short)
		e.chain.after(ctx, info, entered, short)
		return
	}

	var st *status.Status
	switch entry.Kind {
	case call.Unary:
		st = call.ServeUnary(ctx, tr, id, e.codec, entry.NewRequest, entry.Unary)
	case call.ServerStream:
		st = e.serveServerStream(ctx, tr, id, entry)
	case call.ClientStream:
		st = call.ServeClientStream(ctx, tr, id, e.codec, entry.NewRequest, entry.ClientStream)
	case call.Bidi:
		st = call.ServeBidiStream(ctx, tr, id, e.codec, entry.NewRequest, entry.Bidi)
	}
	if st == nil {
		// the caller cancelled before the call driver sent any trailer;
		// there is nothing to run PostHandle/OnError over.
		return
	}
	e.chain.after(ctx, info, entered, st)
}

// serveServerStream drives a server-streaming call with a context
// derived per-stream rather than reusing the transport-lifetime ctx
// Serve was called with: a caller's send half is already closed after
// its single request, but a late cancellation marker can still arrive
// on the stream while the handler is running, and a ctx shared across
// every concurrent stream on the transport would never reflect that
// one stream's cancellation. A side subscription on id watches for
// that marker (transport.Subscribe fans a stream's frames out to every
// subscriber, so this never steals a frame call.ServeServerStream's own
// duplex needs) and cancels streamCtx, which handler observes via
// ctx.Done(), matching spec.md §5's cancellation contract.
func (e *Endpoint) serveServerStream(ctx context.Context, tr transport.Transport, id uint64, entry MethodEntry) *status.Status {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := tr.Subscribe(id, func(fr transport.Frame) {
		if fr.Kind == transport.KindMetadata && fr.EndStream {
			cancel()
		}
	})
	defer unsubscribe()

	return call.ServeServerStream(streamCtx, tr, id, e.codec, entry.NewRequest, entry.ServerStream)
}

// reject closes id with st without ever invoking a call driver, for
// failures discovered before dispatch (unknown path, unknown method,
// a middleware short-circuit).
func (e *Endpoint) reject(tr transport.Transport, id uint64, st *status.Status) {
	_ = tr.SendMetadata(id, call.TrailerMetadata(st), true)
}
