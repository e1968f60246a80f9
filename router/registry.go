package router

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// record is the router's internal bookkeeping for one connected
// client: the public ClientInfo plus liveness and delivery state. All
// mutation happens under Registry's one logical mutex, per spec.md §5
// ("the router's client table is a single critical section").
type record struct {
	info          ClientInfo
	groups        map[string]bool
	lastHeartbeat time.Time
	send          func(Message) bool // delivers a frame to this client's p2p stream; false if the send failed
	closed        bool
}

// Registry is the router's client table: register/lookup/evict plus
// group membership queries, all serialized under one mutex.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*record
}

// NewRegistry returns an empty client table.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*record)}
}

// Register allocates a fresh client id, or returns the existing one
// unchanged if req.PreviousClientID names a live, unexpired record —
// spec.md §4.7's "idempotent on reconnect". joined reports whether a
// new record was created (so the caller can decide whether to emit a
// client-joined topology event).
func (r *Registry) Register(req RegisterRequest, now time.Time, send func(Message) bool) (id string, joined bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.PreviousClientID != "" {
		if rec, ok := r.clients[req.PreviousClientID]; ok && !rec.closed {
			rec.lastHeartbeat = now
			rec.send = send
			return req.PreviousClientID, false
		}
	}

	id = uuid.NewString()
	groups := make(map[string]bool, len(req.Groups))
	for _, g := range req.Groups {
		groups[g] = true
	}
	r.clients[id] = &record{
		info: ClientInfo{
			ClientID:    id,
			Name:        req.Name,
			Groups:      append([]string(nil), req.Groups...),
			Metadata:    copyMeta(req.Metadata),
			ConnectedAt: now,
		},
		groups:        groups,
		lastHeartbeat: now,
		send:          send,
	}
	return id, true
}

// Touch records a heartbeat from id, extending its liveness.
func (r *Registry) Touch(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.clients[id]; ok {
		rec.lastHeartbeat = now
	}
}

// Lookup returns a snapshot of id's record and whether it exists.
func (r *Registry) Lookup(id string) (ClientInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.clients[id]
	if !ok {
		return ClientInfo{}, false
	}
	return rec.info, true
}

// Remove deletes id from the table, e.g. on stream close or eviction.
func (r *Registry) Remove(id string) (ClientInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.clients[id]
	if !ok {
		return ClientInfo{}, false
	}
	rec.closed = true
	delete(r.clients, id)
	return rec.info, true
}

// Snapshot returns every client matching the optional groups/metadata
// filter, exact match on each provided key, per spec.md §4.7.
func (r *Registry) Snapshot(groups []string, meta map[string]string) []ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ClientInfo
	for _, rec := range r.clients {
		if !matches(rec, groups, meta) {
			continue
		}
		out = append(out, rec.info)
	}
	return out
}

func matches(rec *record, groups []string, meta map[string]string) bool {
	for _, g := range groups {
		if !rec.groups[g] {
			return false
		}
	}
	for k, v := range meta {
		if rec.info.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Bind attaches a live p2p stream's delivery function to an already
// registered record, once that stream's opening heartbeat has named a
// known client. Returns false if id is unknown or its record was
// evicted in the meantime.
func (r *Registry) Bind(id string, send func(Message) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.clients[id]
	if !ok || rec.closed {
		return false
	}
	rec.send = send
	return true
}

// Unbind clears id's delivery function without removing the record
// itself, e.g. when its p2p stream ends but ping/getOnlineClients
// should still see it until the liveness sweep evicts it.
func (r *Registry) Unbind(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.clients[id]; ok {
		rec.send = func(Message) bool { return false }
	}
}

// deliverTo sends msg to target's stream, returning false if target is
// unknown or its send failed.
func (r *Registry) deliverTo(target string, msg Message) bool {
	r.mu.Lock()
	rec, ok := r.clients[target]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return rec.send(msg)
}

// members returns the ids of every connected client belonging to any
// of groups, excluding exclude, de-duplicated across groups.
func (r *Registry) members(groups []string, exclude string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for id, rec := range r.clients {
		if id == exclude {
			continue
		}
		for _, g := range groups {
			if rec.groups[g] {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
				break
			}
		}
	}
	return out
}

// all returns every connected client id except exclude.
func (r *Registry) all(exclude string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id := range r.clients {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

// stale returns every client whose last heartbeat predates the given
// cutoff, for the eviction sweep.
func (r *Registry) stale(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, rec := range r.clients {
		if rec.lastHeartbeat.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
