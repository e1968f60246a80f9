package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshrpc/meshrpc/call"
	"github.com/meshrpc/meshrpc/client"
	"github.com/meshrpc/meshrpc/metadata"
	"github.com/meshrpc/meshrpc/status"
)

// Client is the router SDK: a thin convenience layer over a
// client.Endpoint bound to the Router contract, grounded on
// controller/api/public/client.go's NewClient construction pattern.
// Register over a plain unary call, then OpenP2P to bind a single
// long-lived bidi stream for all unicast/multicast/broadcast/request
// traffic, per spec.md §4.7.
type Client struct {
	ep       *client.Endpoint
	clientID string

	p2p   *call.BidiCaller
	inbox chan *Message
	stop  chan struct{}

	mu      sync.Mutex
	pending map[string]chan *Message
}

// NewClient wraps ep, an already-constructed caller Endpoint, as a
// router SDK. Call Register before OpenP2P.
func NewClient(ep *client.Endpoint) *Client {
	return &Client{ep: ep, inbox: make(chan *Message, 64), stop: make(chan struct{}), pending: make(map[string]chan *Message)}
}

// Connect registers with the router and opens a bound p2p stream in
// one call, starting a background heartbeat at heartbeatInterval.
func Connect(ctx context.Context, ep *client.Endpoint, req RegisterRequest, heartbeatInterval, timeout time.Duration) (*Client, error) {
	c := NewClient(ep)
	if _, err := c.Register(ctx, req, timeout); err != nil {
		return nil, err
	}
	if err := c.OpenP2P(heartbeatInterval); err != nil {
		return nil, err
	}
	return c, nil
}

// ClientID returns the id assigned by register, or "" before Register
// has succeeded.
func (c *Client) ClientID() string { return c.clientID }

// Register calls the router's register method, recording the returned
// client id for subsequent p2p framing.
func (c *Client) Register(ctx context.Context, req RegisterRequest, timeout time.Duration) (*RegisterResponse, error) {
	resp, err := c.ep.Invoke(ctx, metadata.Path("Router", "register"), metadata.Metadata{}, &req,
		func() any { return &RegisterResponse{} }, timeout)
	if err != nil {
		return nil, err
	}
	r := resp.(*RegisterResponse)
	c.clientID = r.ClientID
	return r, nil
}

// Ping calls the router's ping method.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) (*PingResponse, error) {
	resp, err := c.ep.Invoke(ctx, metadata.Path("Router", "ping"), metadata.Metadata{}, &PingRequest{},
		func() any { return &PingResponse{} }, timeout)
	if err != nil {
		return nil, err
	}
	return resp.(*PingResponse), nil
}

// GetOnlineClients calls the router's getOnlineClients method.
func (c *Client) GetOnlineClients(ctx context.Context, req GetOnlineClientsRequest, timeout time.Duration) (*GetOnlineClientsResponse, error) {
	resp, err := c.ep.Invoke(ctx, metadata.Path("Router", "getOnlineClients"), metadata.Metadata{}, &req,
		func() any { return &GetOnlineClientsResponse{} }, timeout)
	if err != nil {
		return nil, err
	}
	return resp.(*GetOnlineClientsResponse), nil
}

// SubscribeToEvents opens the router's topology event stream: a
// snapshot message followed by an unbounded sequence of deltas.
func (c *Client) SubscribeToEvents() (*call.ServerStreamCaller, error) {
	return c.ep.NewServerStream(metadata.Path("Router", "subscribeToEvents"), metadata.Metadata{},
		&SubscribeToEventsRequest{}, func() any { return &TopologyEvent{} })
}

// OpenP2P opens the client's p2p stream and sends the identity-binding
// opening heartbeat the router requires. If heartbeatInterval is
// positive, a background goroutine re-sends a heartbeat at that cadence
// until Close.
func (c *Client) OpenP2P(heartbeatInterval time.Duration) error {
	caller, err := c.ep.NewBidiStream(metadata.Path("Router", "p2p"), metadata.Metadata{}, func() any { return &Message{} })
	if err != nil {
		return err
	}
	if err := caller.Send(&Message{Kind: Heartbeat, SenderID: c.clientID}); err != nil {
		return err
	}
	c.p2p = caller

	go c.recvLoop()
	if heartbeatInterval > 0 {
		go c.heartbeatLoop(heartbeatInterval)
	}
	return nil
}

func (c *Client) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.p2p.Send(&Message{Kind: Heartbeat, SenderID: c.clientID}); err != nil {
				return
			}
		}
	}
}

// recvLoop demultiplexes the p2p stream: router heartbeats are
// consumed here, p2p-responses are routed to the pending Request call
// they answer, everything else is pushed to Inbox.
func (c *Client) recvLoop() {
	defer close(c.inbox)
	for {
		v, err := c.p2p.Recv(context.Background())
		if err != nil {
			return
		}
		msg := v.(*Message)
		if msg.Kind == Heartbeat {
			continue
		}
		if msg.Kind == P2PResponse {
			c.mu.Lock()
			ch, ok := c.pending[msg.RequestID]
			if ok {
				delete(c.pending, msg.RequestID)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg
				continue
			}
		}
		select {
		case c.inbox <- msg:
		default:
		}
	}
}

// Inbox yields inbound unicast/multicast/broadcast/p2p-request
// messages (and unmatched p2p-responses) not otherwise consumed by
// Request. It buffers 64 messages; a message that arrives while the
// buffer is full is dropped. Closed once the p2p stream ends.
func (c *Client) Inbox() <-chan *Message { return c.inbox }

// SendUnicast sends payload to a single target client.
func (c *Client) SendUnicast(targetID string, payload any) error {
	return c.p2p.Send(&Message{Kind: Unicast, SenderID: c.clientID, TargetID: targetID, Payload: payload})
}

// SendMulticast sends payload to every client belonging to any of groups.
func (c *Client) SendMulticast(groups []string, payload any) error {
	return c.p2p.Send(&Message{Kind: Multicast, SenderID: c.clientID, TargetGroups: groups, Payload: payload})
}

// SendBroadcast sends payload to every other connected client.
func (c *Client) SendBroadcast(payload any) error {
	return c.p2p.Send(&Message{Kind: Broadcast, SenderID: c.clientID, Payload: payload})
}

// Request sends a p2p-request to targetID and blocks until its
// matching p2p-response arrives (or the router's synthesized
// not-found), or ctx is done.
func (c *Client) Request(ctx context.Context, targetID string, payload any) (*Message, error) {
	reqID := uuid.NewString()
	ch := make(chan *Message, 1)
	c.mu.Lock()
	c.pending[reqID] = ch
	c.mu.Unlock()

	if err := c.p2p.Send(&Message{Kind: P2PRequest, SenderID: c.clientID, TargetID: targetID, RequestID: reqID, Payload: payload}); err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, status.Errorf(status.DeadlineExceeded, "p2p request to %q timed out", targetID)
	case resp := <-ch:
		if !resp.Success && resp.ErrorCode != "" {
			return resp, status.Errorf(status.NotFound, "p2p request to %q: %s", targetID, resp.ErrorCode)
		}
		return resp, nil
	}
}

// Respond answers a p2p-request received via Inbox.
func (c *Client) Respond(req *Message, success bool, payload any) error {
	return c.p2p.Send(&Message{
		Kind:      P2PResponse,
		SenderID:  c.clientID,
		TargetID:  req.SenderID,
		RequestID: req.RequestID,
		Success:   success,
		Payload:   payload,
	})
}

// Close stops the heartbeat loop and cancels the p2p stream.
func (c *Client) Close() error {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	if c.p2p != nil {
		c.p2p.Cancel()
	}
	return nil
}
