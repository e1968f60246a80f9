// Package codec defines the pluggable byte<->value converters of
// spec.md §3: a Codec is pure and must round-trip the values a service
// accepts. The engine treats codecs as opaque; this package ships a
// JSON codec, a protobuf codec, and a "primitive value" codec realizing
// spec.md §9's design note that boxed bool/int/string wrappers collapse
// into a single opaque primitive variant.
package codec

// Codec converts between wire bytes and a Go value.
type Codec interface {
	// Name identifies the codec for the content-type header, e.g.
	// "json", "proto".
	Name() string
	// Marshal encodes v into bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes data into v, a pointer to the destination value.
	Unmarshal(data []byte, v any) error
}
