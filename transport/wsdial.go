package transport

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// FrameConn is the minimum interface an out-of-scope byte-socket wire
// adapter must satisfy to be usable as the data channel under a future
// network Transport implementation: send one opaque frame, receive one
// opaque frame, close the channel. A full adapter would multiplex every
// logical stream's metadata and message frames over one FrameConn
// (message payloads framed with wire.Encode/wire.Decode, headers
// carried by whatever out-of-band scheme the adapter defines); building
// that multiplexer is outside this core's scope, per spec.md's
// transport-agnostic design — this type and DialWebSocket exist only so
// an adapter has a concrete, tested starting point rather than a bare
// gorilla/websocket.Conn.
type FrameConn interface {
	Send(payload []byte) error
	Recv() ([]byte, error)
	Close() error
}

type wsFrameConn struct {
	conn *websocket.Conn
}

func (c *wsFrameConn) Send(payload []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (c *wsFrameConn) Recv() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

func (c *wsFrameConn) Close() error {
	return c.conn.Close()
}

// DialWebSocket opens a WebSocket connection to url and wraps it as a
// FrameConn, one binary WebSocket message per frame. It is the
// reference dial path a network wire adapter would build on; it does
// not itself implement Transport.
func DialWebSocket(ctx context.Context, url string, header http.Header) (FrameConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &wsFrameConn{conn: conn}, nil
}
