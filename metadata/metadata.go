// Package metadata implements the Header/Metadata value objects of
// spec.md §3: an ordered sequence of lower-cased name/value pairs
// carried out-of-band from message frames, immutable once attached to
// a frame.
package metadata

import "strings"

// Well-known header names, per spec.md §6.
const (
	PathHeader        = ":path"
	ContentTypeHeader = "content-type"
	StatusHeader      = "grpc-status"
	MessageHeader     = "grpc-message"

	DefaultContentType = "application/grpc+proto"
)

// Header is an immutable name/value pair. Names are stored lower-cased,
// except pseudo-header names (those beginning with ":"), which are
// stored and matched exactly as given.
type Header struct {
	Name  string
	Value string
}

// IsPseudo reports whether this header is a pseudo-header (":path" and
// friends).
func (h Header) IsPseudo() bool {
	return strings.HasPrefix(h.Name, ":")
}

// Metadata is an ordered, immutable-once-built sequence of headers.
// The zero value is an empty Metadata ready to use.
type Metadata struct {
	headers []Header
}

// New builds a Metadata from name/value pairs, lower-casing names other
// than pseudo-header names.
func New(pairs ...string) Metadata {
	if len(pairs)%2 != 0 {
		panic("metadata.New: odd number of arguments")
	}
	m := Metadata{}
	for i := 0; i < len(pairs); i += 2 {
		m = m.With(pairs[i], pairs[i+1])
	}
	return m
}

// With returns a new Metadata with the given header appended. Metadata
// values are copy-on-write so that a Metadata already attached to a
// frame is never mutated in place.
func (m Metadata) With(name, value string) Metadata {
	if !strings.HasPrefix(name, ":") {
		name = strings.ToLower(name)
	}
	out := make([]Header, len(m.headers), len(m.headers)+1)
	copy(out, m.headers)
	out = append(out, Header{Name: name, Value: value})
	return Metadata{headers: out}
}

// Get returns the first value for name, and whether it was present.
func (m Metadata) Get(name string) (string, bool) {
	if !strings.HasPrefix(name, ":") {
		name = strings.ToLower(name)
	}
	for _, h := range m.headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// All returns all values for name, in send order.
func (m Metadata) All(name string) []string {
	if !strings.HasPrefix(name, ":") {
		name = strings.ToLower(name)
	}
	var out []string
	for _, h := range m.headers {
		if h.Name == name {
			out = append(out, h.Value)
		}
	}
	return out
}

// Headers returns the ordered header list. The returned slice must not
// be mutated by the caller.
func (m Metadata) Headers() []Header {
	return m.headers
}

// Len reports the number of headers.
func (m Metadata) Len() int {
	return len(m.headers)
}

// Path builds the ":path" pseudo-header value "/service/method" from
// its service and method components.
func Path(service, method string) string {
	return "/" + service + "/" + method
}

// ParsePath parses a ":path" value into (service, method). It returns
// ok=false if the path is not of the expected "/service/method" shape.
func ParsePath(path string) (service, method string, ok bool) {
	if len(path) == 0 || path[0] != '/' {
		return "", "", false
	}
	rest := path[1:]
	idx := strings.LastIndex(rest, "/")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
