package router

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshrpc/meshrpc/call"
	"github.com/meshrpc/meshrpc/server"
	"github.com/meshrpc/meshrpc/status"
)

// Default tuning for a Router, per spec.md §4.7.
const (
	DefaultHeartbeatInterval  = 20 * time.Second
	DefaultClientTimeout      = 5 * time.Minute
	DefaultOutboundQueueDepth = 64
)

// Options configures a Router.
type Options struct {
	// HeartbeatInterval is how often the router sweeps for stale
	// records and emits its own heartbeat to every bound p2p stream.
	HeartbeatInterval time.Duration
	// ClientTimeout is how long a record may go without a received
	// heartbeat or p2p frame before it is evicted.
	ClientTimeout time.Duration
	// EventQueueDepth bounds each subscribeToEvents caller's queue.
	EventQueueDepth int
	// OutboundQueueDepth bounds each p2p stream's router-to-client
	// delivery queue.
	OutboundQueueDepth int
	Logger             *logrus.Entry
}

// Router is the federated mediation service of spec.md §4.7: a client
// registry, a topology event bus, and P2P message dispatch, exposed as
// an ordinary ServiceRegistration so it runs on the same dispatcher as
// any other contract.
type Router struct {
	registry *Registry
	events   *eventBus
	pending  *pendingTable
	options  Options
	log      *logrus.Entry
}

// New constructs a Router. Call Start to begin its liveness sweep.
func New(opts Options) *Router {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = DefaultClientTimeout
	}
	if opts.OutboundQueueDepth <= 0 {
		opts.OutboundQueueDepth = DefaultOutboundQueueDepth
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{
		registry: NewRegistry(),
		events:   newEventBus(opts.EventQueueDepth),
		pending:  newPendingTable(),
		options:  opts,
		log:      log.WithField("component", "router"),
	}
}

func (rt *Router) now() time.Time { return time.Now() }

// Stats reports how many clients are currently registered, for
// periodic --stats logging.
func (rt *Router) Stats() int {
	return len(rt.registry.all(""))
}

// ServiceRegistration returns the Router's five methods, ready to pass
// to a server.Registry.
func (rt *Router) ServiceRegistration() server.ServiceRegistration {
	return server.ServiceRegistration{
		Name: "Router",
		Methods: []server.MethodEntry{
			{
				Method:     "register",
				Kind:       call.Unary,
				NewRequest: func() any { return &RegisterRequest{} },
				Unary:      rt.handleRegister,
			},
			{
				Method:     "ping",
				Kind:       call.Unary,
				NewRequest: func() any { return &PingRequest{} },
				Unary:      rt.handlePing,
			},
			{
				Method:     "getOnlineClients",
				Kind:       call.Unary,
				NewRequest: func() any { return &GetOnlineClientsRequest{} },
				Unary:      rt.handleGetOnlineClients,
			},
			{
				Method:       "subscribeToEvents",
				Kind:         call.ServerStream,
				NewRequest:   func() any { return &SubscribeToEventsRequest{} },
				ServerStream: rt.handleSubscribeToEvents,
			},
			{
				Method:     "p2p",
				Kind:       call.Bidi,
				NewRequest: func() any { return &Message{} },
				Bidi:       rt.handleP2P,
			},
		},
	}
}

// Start runs the liveness sweep and router heartbeat emission until ctx
// is cancelled.
func (rt *Router) Start(ctx context.Context) {
	go rt.loop(ctx)
}

func (rt *Router) loop(ctx context.Context) {
	ticker := time.NewTicker(rt.options.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.tick()
		}
	}
}

func (rt *Router) tick() {
	cutoff := rt.now().Add(-rt.options.ClientTimeout)
	for _, id := range rt.registry.stale(cutoff) {
		info, ok := rt.registry.Remove(id)
		if !ok {
			continue
		}
		rt.events.publish(TopologyEvent{Kind: ClientLeft, Client: &info})
		rt.log.WithField("clientId", id).Info("evicted stale client")
	}

	beat := Message{Kind: Heartbeat, SenderID: RouterSenderID}
	for _, id := range rt.registry.all("") {
		rt.registry.deliverTo(id, beat)
	}
}

func (rt *Router) handleRegister(ctx context.Context, req any) (any, error) {
	r := req.(*RegisterRequest)
	id, joined := rt.registry.Register(*r, rt.now(), func(Message) bool { return false })
	if joined {
		info, ok := rt.registry.Lookup(id)
		if ok {
			rt.events.publish(TopologyEvent{Kind: ClientJoined, Client: &info})
		}
	}
	return &RegisterResponse{ClientID: id}, nil
}

func (rt *Router) handlePing(ctx context.Context, req any) (any, error) {
	return &PingResponse{ServerTime: rt.now()}, nil
}

func (rt *Router) handleGetOnlineClients(ctx context.Context, req any) (any, error) {
	r := req.(*GetOnlineClientsRequest)
	return &GetOnlineClientsResponse{Clients: rt.registry.Snapshot(r.Groups, r.Metadata)}, nil
}

func (rt *Router) handleSubscribeToEvents(ctx context.Context, req any, send call.Send) error {
	snapshot := rt.registry.Snapshot(nil, nil)
	if err := send(&TopologyEvent{Kind: Snapshot, Snapshot: snapshot}); err != nil {
		return err
	}

	var dropErr error
	_, events, unsubscribe := rt.events.subscribe(func(code status.Code, msg string) {
		dropErr = status.Errorf(code, "%s", msg)
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				if dropErr != nil {
					return dropErr
				}
				return nil
			}
			if err := send(&evt); err != nil {
				return err
			}
		}
	}
}

// handleP2P drives one client's p2p stream. Its opening message must be
// a heartbeat naming an already-registered client id, binding the
// stream to that record for the rest of its life, per spec.md §4.7.
func (rt *Router) handleP2P(ctx context.Context, recv call.Recv, send call.Send) error {
	v, ok, err := recv()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	first, isMsg := v.(*Message)
	if !isMsg || first.Kind != Heartbeat {
		return status.Errorf(status.FailedPrecondition, "p2p stream must open with a heartbeat naming the registered client")
	}
	boundID := first.SenderID

	outbound := make(chan Message, rt.options.OutboundQueueDepth)
	stop := make(chan struct{})
	defer close(stop)

	bound := rt.registry.Bind(boundID, func(m Message) bool {
		select {
		case outbound <- m:
			return true
		default:
			return false
		}
	})
	if !bound {
		return status.Errorf(status.FailedPrecondition, "p2p stream heartbeat named unknown client %q", boundID)
	}
	defer rt.registry.Unbind(boundID)
	rt.registry.Touch(boundID, rt.now())

	pumpErr := make(chan error, 1)
	go func() {
		for {
			select {
			case m := <-outbound:
				if err := send(&m); err != nil {
					pumpErr <- err
					return
				}
			case <-stop:
				return
			}
		}
	}()

	for {
		v, ok, err := recv()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		msg, isMsg := v.(*Message)
		if !isMsg {
			continue
		}
		rt.routeMessage(boundID, msg)

		select {
		case err := <-pumpErr:
			return err
		default:
		}
	}
}

// routeMessage dispatches one inbound p2p frame from senderID per its
// Kind, stamping SenderID itself so a client can never spoof another
// client's identity on the frames it forwards.
func (rt *Router) routeMessage(senderID string, msg *Message) {
	switch msg.Kind {
	case Heartbeat:
		rt.registry.Touch(senderID, rt.now())

	case Unicast:
		out := *msg
		out.SenderID = senderID
		rt.registry.deliverTo(msg.TargetID, out)

	case Multicast:
		for _, id := range rt.registry.members(msg.TargetGroups, senderID) {
			out := *msg
			out.SenderID = senderID
			rt.registry.deliverTo(id, out)
		}

	case Broadcast:
		for _, id := range rt.registry.all(senderID) {
			out := *msg
			out.SenderID = senderID
			rt.registry.deliverTo(id, out)
		}

	case P2PRequest:
		rt.pending.add(msg.RequestID, senderID)
		out := *msg
		out.SenderID = senderID
		if !rt.registry.deliverTo(msg.TargetID, out) {
			rt.pending.drop(msg.RequestID)
			rt.registry.deliverTo(senderID, Message{
				Kind:      P2PResponse,
				SenderID:  RouterSenderID,
				TargetID:  senderID,
				RequestID: msg.RequestID,
				Success:   false,
				ErrorCode: status.NotFound.String(),
			})
		}

	case P2PResponse:
		requester, ok := rt.pending.resolve(msg.RequestID)
		if !ok {
			rt.log.WithField("requestId", msg.RequestID).Debug("dropping p2p-response with unknown request id")
			return
		}
		out := *msg
		out.SenderID = senderID
		rt.registry.deliverTo(requester, out)
	}
}
