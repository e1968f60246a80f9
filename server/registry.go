// Package server implements the responder side of spec.md §4.4–§4.5:
// a service registry, an ordered middleware chain, and a dispatch
// loop that subscribes to inbound streams on one or more transports
// and drives each to completion through the matching call driver.
package server

import (
	"fmt"
	"sync"

	"github.com/meshrpc/meshrpc/call"
)

// MethodEntry is one registered RPC method: its call shape, a factory
// for a fresh request value to decode into, and the driver-facing
// handler for that shape. Exactly one of Unary/ServerStream/
// ClientStream/Bidi must be set, matching Kind.
type MethodEntry struct {
	Method string
	Kind   call.Kind

	NewRequest func() any

	Unary        call.UnaryHandler
	ServerStream call.ServerStreamHandler
	ClientStream call.ClientStreamHandler
	Bidi         call.BidiHandler

	service string // set by Registry.Register
}

func (m MethodEntry) validate() error {
	if m.Method == "" {
		return fmt.Errorf("method name is empty")
	}
	if m.NewRequest == nil {
		return fmt.Errorf("method %q has no request factory", m.Method)
	}
	switch m.Kind {
	case call.Unary:
		if m.Unary == nil {
			return fmt.Errorf("method %q declared unary but has no unary handler", m.Method)
		}
	case call.ServerStream:
		if m.ServerStream == nil {
			return fmt.Errorf("method %q declared server-stream but has no server-stream handler", m.Method)
		}
	case call.ClientStream:
		if m.ClientStream == nil {
			return fmt.Errorf("method %q declared client-stream but has no client-stream handler", m.Method)
		}
	case call.Bidi:
		if m.Bidi == nil {
			return fmt.Errorf("method %q declared bidi but has no bidi handler", m.Method)
		}
	default:
		return fmt.Errorf("method %q has unknown call kind %v", m.Method, m.Kind)
	}
	return nil
}

// ServiceRegistration is one handler-implementing unit: a service name
// plus its methods, per spec.md §3's ServiceRegistration entity.
type ServiceRegistration struct {
	Name    string
	Methods []MethodEntry
}

// Registry maps (service, method) to the MethodEntry that serves it.
// It is read-mostly after startup, per spec.md §5: Register happens
// during wiring under a write lock, Lookup happens on every dispatched
// stream under a read lock.
type Registry struct {
	mu        sync.RWMutex
	byService map[string]map[string]MethodEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byService: make(map[string]map[string]MethodEntry)}
}

// Register adds reg and any subContracts to the registry. Each
// sub-contract's methods are flattened into the registry under the
// sub-contract's own service name (no automatic prefixing), per
// spec.md §4.4. Register rejects: a service name already registered,
// a duplicate service name among the arguments, a duplicate method
// name within one service, and a method whose declared Kind
// contradicts which handler field is set.
func (r *Registry) Register(reg ServiceRegistration, subContracts ...ServiceRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := append([]ServiceRegistration{reg}, subContracts...)
	argSeen := make(map[string]bool, len(all))
	for _, s := range all {
		if s.Name == "" {
			return fmt.Errorf("server: service has empty name")
		}
		if argSeen[s.Name] {
			return fmt.Errorf("server: duplicate service name %q", s.Name)
		}
		argSeen[s.Name] = true
		if _, exists := r.byService[s.Name]; exists {
			return fmt.Errorf("server: service %q already registered", s.Name)
		}
	}

	built := make(map[string]map[string]MethodEntry, len(all))
	for _, s := range all {
		methods := make(map[string]MethodEntry, len(s.Methods))
		for _, m := range s.Methods {
			if _, dup := methods[m.Method]; dup {
				return fmt.Errorf("server: duplicate method %q on service %q", m.Method, s.Name)
			}
			if err := m.validate(); err != nil {
				return fmt.Errorf("server: service %q: %w", s.Name, err)
			}
			m.service = s.Name
			methods[m.Method] = m
		}
		built[s.Name] = methods
	}

	for name, methods := range built {
		r.byService[name] = methods
	}
	return nil
}

// Lookup finds the MethodEntry registered for (service, method).
func (r *Registry) Lookup(service, method string) (MethodEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods, ok := r.byService[service]
	if !ok {
		return MethodEntry{}, false
	}
	m, ok := methods[method]
	return m, ok
}
