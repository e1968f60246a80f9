// Package stream implements the per-stream building blocks of
// spec.md §4.2: id allocation (odd for initiator, even for responder),
// the per-stream state machine, and flow-control window accounting.
// These are transport-agnostic; transport/memory composes them to
// build the in-process loopback transport, and any other Transport
// implementation is expected to do the same.
package stream

import (
	"sync/atomic"

	"github.com/meshrpc/meshrpc/transport"
)

// Allocator hands out strictly increasing stream ids honoring the
// odd/even discipline of spec.md §4.2: the initiator uses odd ids
// starting at 1, the acceptor uses even ids starting at 2.
type Allocator struct {
	next atomic.Uint64
}

// NewAllocator returns an Allocator for the given role.
func NewAllocator(role transport.Role) *Allocator {
	a := &Allocator{}
	if role == transport.Initiator {
		a.next.Store(1)
	} else {
		a.next.Store(2)
	}
	return a
}

// Next returns the next id for this side and advances the allocator by
// two, preserving the odd/even parity forever.
func (a *Allocator) Next() uint64 {
	return a.next.Add(2) - 2
}

// IsLocal reports whether id was allocated by the given role (odd ids
// belong to the initiator, even ids to the acceptor). Stream id 0 is
// never valid and always reports false.
func IsLocal(id uint64, role transport.Role) bool {
	if id == 0 {
		return false
	}
	if role == transport.Initiator {
		return id%2 == 1
	}
	return id%2 == 0
}
