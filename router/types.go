// Package router implements the federated mediation service of
// spec.md §4.7: client registration, topology events, and P2P message
// routing (unicast, multicast, broadcast, request/response, and
// heartbeat liveness), exposed as an ordinary responder contract so it
// runs on the same call drivers as any other service. Grounded on
// controller/heartbeat's periodic-liveness-probe idiom for the
// eviction loop and controller/api/public/client.go's NewClient shape
// for the router.Client SDK in client.go.
package router

import "time"

// MessageKind identifies which P2P routing behavior a Message
// exercises, per spec.md §4.7.
type MessageKind int

const (
	Unicast MessageKind = iota
	Multicast
	Broadcast
	P2PRequest
	P2PResponse
	Heartbeat
)

func (k MessageKind) String() string {
	switch k {
	case Unicast:
		return "unicast"
	case Multicast:
		return "multicast"
	case Broadcast:
		return "broadcast"
	case P2PRequest:
		return "p2p-request"
	case P2PResponse:
		return "p2p-response"
	case Heartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// RouterSenderID is the synthetic sender id stamped on heartbeats the
// router itself emits, per spec.md §4.7.
const RouterSenderID = "router"

// Message is one frame on a client's p2p stream, per spec.md §3's
// RouterMessage entity.
type Message struct {
	Kind          MessageKind
	SenderID      string
	TargetID      string   `json:"targetId,omitempty"`
	TargetGroups  []string `json:"targetGroups,omitempty"`
	RequestID     string   `json:"requestId,omitempty"`
	Success       bool     `json:"success,omitempty"`
	ErrorCode     string   `json:"errorCode,omitempty"`
	Payload       any      `json:"payload,omitempty"`
}

// RegisterRequest is the register unary method's request.
type RegisterRequest struct {
	Name             string            `json:"name"`
	Groups           []string          `json:"groups,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	PreviousClientID string            `json:"previousClientId,omitempty"`
}

// RegisterResponse is the register unary method's response.
type RegisterResponse struct {
	ClientID string `json:"clientId"`
}

// PingRequest/PingResponse implement the ping unary method.
type PingRequest struct{}
type PingResponse struct {
	ServerTime time.Time `json:"serverTime"`
}

// GetOnlineClientsRequest filters the client snapshot by exact-match
// groups/metadata, per spec.md §4.7.
type GetOnlineClientsRequest struct {
	Groups   []string          `json:"groups,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ClientInfo is one entry of a GetOnlineClientsResponse or topology
// event snapshot.
type ClientInfo struct {
	ClientID    string            `json:"clientId"`
	Name        string            `json:"name"`
	Groups      []string          `json:"groups,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ConnectedAt time.Time         `json:"connectedAt"`
}

// GetOnlineClientsResponse is the getOnlineClients unary method's
// response.
type GetOnlineClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// SubscribeToEventsRequest carries no fields; the server stream always
// opens with a full snapshot followed by deltas.
type SubscribeToEventsRequest struct{}

// TopologyEventKind identifies the topology change a TopologyEvent
// reports.
type TopologyEventKind int

const (
	Snapshot TopologyEventKind = iota
	ClientJoined
	ClientLeft
	ClientMetadataChanged
	ClientGroupsChanged
)

func (k TopologyEventKind) String() string {
	switch k {
	case Snapshot:
		return "snapshot"
	case ClientJoined:
		return "client-joined"
	case ClientLeft:
		return "client-left"
	case ClientMetadataChanged:
		return "client-metadata-changed"
	case ClientGroupsChanged:
		return "client-groups-changed"
	default:
		return "unknown"
	}
}

// TopologyEvent is one message on the subscribeToEvents server stream.
type TopologyEvent struct {
	Kind     TopologyEventKind `json:"kind"`
	Client   *ClientInfo       `json:"client,omitempty"`
	Snapshot []ClientInfo      `json:"snapshot,omitempty"`
}
