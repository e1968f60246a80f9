package router

import "sync"

// pendingTable correlates an in-flight p2p-request's request id to the
// client that issued it, so the router — not the responding client —
// decides who a p2p-response is delivered to (spec.md's testable
// property 9: "no response is delivered to any other client").
type pendingTable struct {
	mu      sync.Mutex
	pending map[string]string
}

func newPendingTable() *pendingTable {
	return &pendingTable{pending: make(map[string]string)}
}

// add records that requestID was issued by sender.
func (t *pendingTable) add(requestID, sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[requestID] = sender
}

// resolve looks up and removes the sender recorded for requestID. A
// p2p-response (or a synthesized not-found) may only be delivered
// once per request id.
func (t *pendingTable) resolve(requestID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sender, ok := t.pending[requestID]
	if ok {
		delete(t.pending, requestID)
	}
	return sender, ok
}

// drop removes requestID without resolving it, e.g. when the original
// requester has disconnected before a response arrived.
func (t *pendingTable) drop(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, requestID)
}
