package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshrpc/meshrpc/client"
	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/router"
	"github.com/meshrpc/meshrpc/server"
	"github.com/meshrpc/meshrpc/transport"
	"github.com/meshrpc/meshrpc/transport/memory"
)

// harness wires one Router responder and a handful of client-side
// Endpoints over independent in-process transport pairs, mirroring
// how a real deployment would have many clients dial the same router.
type harness struct {
	t   *testing.T
	rt  *router.Router
	ep  *server.Endpoint
	ctx context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rt := router.New(router.Options{
		HeartbeatInterval: 20 * time.Millisecond,
		ClientTimeout:     60 * time.Millisecond,
	})
	reg := server.NewRegistry()
	if err := reg.Register(rt.ServiceRegistration()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ep := server.NewEndpoint(reg, codec.JSON{}, logrus.NewEntry(logrus.New()))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rt.Start(ctx)
	return &harness{t: t, rt: rt, ep: ep, ctx: ctx}
}

func (h *harness) dial(name string, groups ...string) *router.Client {
	h.t.Helper()
	ta, tb := memory.NewPair(transport.Options{})
	h.t.Cleanup(func() { ta.Close(); tb.Close() })
	h.ep.Serve(h.ctx, tb)

	c, err := router.Connect(context.Background(), client.New(ta, codec.JSON{}),
		router.RegisterRequest{Name: name, Groups: groups}, 0, time.Second)
	if err != nil {
		h.t.Fatalf("Connect(%s): %v", name, err)
	}
	return c
}

func TestRegisterAssignsDistinctIDs(t *testing.T) {
	h := newHarness(t)
	a := h.dial("alpha")
	b := h.dial("beta")
	if a.ClientID() == "" || b.ClientID() == "" {
		t.Fatalf("expected non-empty client ids")
	}
	if a.ClientID() == b.ClientID() {
		t.Fatalf("expected distinct client ids")
	}
}

func TestRegisterIsIdempotentOnReconnect(t *testing.T) {
	h := newHarness(t)
	ta, tb := memory.NewPair(transport.Options{})
	defer ta.Close()
	defer tb.Close()
	h.ep.Serve(h.ctx, tb)

	cep := client.New(ta, codec.JSON{})
	c := router.NewClient(cep)
	first, err := c.Register(context.Background(), router.RegisterRequest{Name: "alpha"}, time.Second)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	second, err := c.Register(context.Background(), router.RegisterRequest{Name: "alpha", PreviousClientID: first.ClientID}, time.Second)
	if err != nil {
		t.Fatalf("Register (reconnect): %v", err)
	}
	if second.ClientID != first.ClientID {
		t.Fatalf("reconnect got a new id: %q != %q", second.ClientID, first.ClientID)
	}
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	c := h.dial("alpha")
	resp, err := c.Ping(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if resp.ServerTime.IsZero() {
		t.Fatalf("expected non-zero server time")
	}
}

func TestGetOnlineClients(t *testing.T) {
	h := newHarness(t)
	h.dial("alpha", "team-a")
	h.dial("beta", "team-b")
	c := h.dial("gamma", "team-a")

	resp, err := c.GetOnlineClients(context.Background(), router.GetOnlineClientsRequest{Groups: []string{"team-a"}}, time.Second)
	if err != nil {
		t.Fatalf("GetOnlineClients: %v", err)
	}
	if len(resp.Clients) != 2 {
		t.Fatalf("expected 2 team-a clients, got %d: %+v", len(resp.Clients), resp.Clients)
	}
}

func TestP2PUnicastDelivery(t *testing.T) {
	h := newHarness(t)
	a := h.dial("alpha")
	b := h.dial("beta")

	if err := a.SendUnicast(b.ClientID(), "hello"); err != nil {
		t.Fatalf("SendUnicast: %v", err)
	}

	select {
	case msg := <-b.Inbox():
		if msg.Kind != router.Unicast || msg.SenderID != a.ClientID() || msg.Payload != "hello" {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for unicast delivery")
	}
}

func TestP2PMulticastExcludesSender(t *testing.T) {
	h := newHarness(t)
	a := h.dial("alpha", "team")
	b := h.dial("beta", "team")
	c := h.dial("gamma", "team")

	if err := a.SendMulticast([]string{"team"}, "go"); err != nil {
		t.Fatalf("SendMulticast: %v", err)
	}

	for _, rc := range []*router.Client{b, c} {
		select {
		case msg := <-rc.Inbox():
			if msg.Kind != router.Multicast || msg.Payload != "go" {
				t.Fatalf("unexpected message %+v", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for multicast delivery")
		}
	}

	select {
	case msg := <-a.Inbox():
		t.Fatalf("sender should not receive its own multicast, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestP2PRequestResponseRoundTrip(t *testing.T) {
	h := newHarness(t)
	a := h.dial("alpha")
	b := h.dial("beta")

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case req := <-b.Inbox():
			if req.Kind != router.P2PRequest {
				t.Errorf("expected p2p-request, got %v", req.Kind)
				return
			}
			_ = b.Respond(req, true, "pong")
		case <-time.After(time.Second):
			t.Error("beta never saw the request")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := a.Request(ctx, b.ClientID(), "ping")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Payload != "pong" {
		t.Fatalf("got payload %v", resp.Payload)
	}
	<-done
}

func TestP2PRequestToUnknownTargetSynthesizesNotFound(t *testing.T) {
	h := newHarness(t)
	a := h.dial("alpha")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := a.Request(ctx, "no-such-client", "ping")
	if err == nil {
		t.Fatal("expected an error for an unknown target")
	}
}

func TestSubscribeToEventsSeesSnapshotThenJoin(t *testing.T) {
	h := newHarness(t)
	watcher := h.dial("watcher")

	stream, err := watcher.SubscribeToEvents()
	if err != nil {
		t.Fatalf("SubscribeToEvents: %v", err)
	}

	v, err := stream.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv snapshot: %v", err)
	}
	if v.(*router.TopologyEvent).Kind != router.Snapshot {
		t.Fatalf("expected a snapshot first, got %v", v.(*router.TopologyEvent).Kind)
	}

	h.dial("newcomer")

	joined := false
	deadline := time.After(2 * time.Second)
	for !joined {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a client-joined event")
		default:
		}
		v, err := stream.Recv(context.Background())
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		evt := v.(*router.TopologyEvent)
		if evt.Kind == router.ClientJoined && evt.Client.Name == "newcomer" {
			joined = true
		}
	}
}
