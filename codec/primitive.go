package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Primitive is the single opaque "primitive value" variant of spec.md
// §9: rather than expose a boxed-bool/boxed-int/boxed-string wrapper
// type per primitive kind (as the unspecified source program did), any
// JSON-representable scalar, list, or map is carried through this one
// type. The underlying representation is backed by
// google.golang.org/protobuf/types/known/structpb.Value, a real
// well-known protobuf type, so primitive payloads are wire-compatible
// with any protobuf-speaking peer.
type Primitive struct {
	v *structpb.Value
}

// NewPrimitive wraps a bool, int64/float64, string, nil, []any, or
// map[string]any into a Primitive.
func NewPrimitive(v any) (Primitive, error) {
	sv, err := structpb.NewValue(v)
	if err != nil {
		return Primitive{}, fmt.Errorf("codec: %w", err)
	}
	return Primitive{v: sv}, nil
}

// Interface returns the underlying Go value (bool, float64, string,
// nil, []any, or map[string]any).
func (p Primitive) Interface() any {
	if p.v == nil {
		return nil
	}
	return p.v.AsInterface()
}

// PrimitiveCodec is a Codec over Primitive values.
type PrimitiveCodec struct{}

func (PrimitiveCodec) Name() string { return "primitive" }

func (PrimitiveCodec) Marshal(v any) ([]byte, error) {
	var sv *structpb.Value
	switch p := v.(type) {
	case Primitive:
		sv = p.v
	case *Primitive:
		sv = p.v
	default:
		wrapped, err := structpb.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("codec: %w", err)
		}
		sv = wrapped
	}
	if sv == nil {
		sv = structpb.NewNullValue()
	}
	return proto.Marshal(sv)
}

func (PrimitiveCodec) Unmarshal(data []byte, v any) error {
	dst, ok := v.(*Primitive)
	if !ok {
		return fmt.Errorf("codec: PrimitiveCodec.Unmarshal requires *Primitive, got %T", v)
	}
	sv := &structpb.Value{}
	if err := proto.Unmarshal(data, sv); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	dst.v = sv
	return nil
}
