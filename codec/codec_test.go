package codec

import (
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type greeting struct {
	Name string `json:"name"`
}

func TestJSONRoundTrip(t *testing.T) {
	c := JSON{}
	data, err := c.Marshal(greeting{Name: "ada"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out greeting
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != "ada" {
		t.Fatalf("got %+v", out)
	}
}

func TestProtoRoundTrip(t *testing.T) {
	c := Proto{}
	msg := wrapperspb.String("hello")
	data, err := c.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := &wrapperspb.StringValue{}
	if err := c.Unmarshal(data, out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Value != "hello" {
		t.Fatalf("got %q", out.Value)
	}
}

func TestProtoRejectsNonProtoMessage(t *testing.T) {
	c := Proto{}
	if _, err := c.Marshal(greeting{Name: "ada"}); err == nil {
		t.Fatal("expected error marshaling a non-proto.Message value")
	}
}

func TestPrimitiveRoundTripScalars(t *testing.T) {
	c := PrimitiveCodec{}
	cases := []any{
		"a string",
		3.14,
		true,
		nil,
		map[string]any{"k": "v"},
		[]any{1.0, 2.0, "three"},
	}
	for _, in := range cases {
		p, err := NewPrimitive(in)
		if err != nil {
			t.Fatalf("NewPrimitive(%v): %v", in, err)
		}
		data, err := c.Marshal(p)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", in, err)
		}
		var out Primitive
		if err := c.Unmarshal(data, &out); err != nil {
			t.Fatalf("Unmarshal(%v): %v", in, err)
		}
		got := out.Interface()
		if !deepEqualLoose(got, in) {
			t.Fatalf("round trip mismatch: got %#v, want %#v", got, in)
		}
	}
}

func TestPrimitiveMarshalWrapsRawValue(t *testing.T) {
	c := PrimitiveCodec{}
	data, err := c.Marshal("raw")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out Primitive
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Interface() != "raw" {
		t.Fatalf("got %v", out.Interface())
	}
}

func TestPrimitiveUnmarshalRejectsWrongDestination(t *testing.T) {
	c := PrimitiveCodec{}
	data, _ := c.Marshal("x")
	var dst string
	if err := c.Unmarshal(data, &dst); err == nil {
		t.Fatal("expected error unmarshaling into a non-*Primitive destination")
	}
}

// deepEqualLoose compares primitive round-trip values where nil may
// come back typed as a nil interface either way.
func deepEqualLoose(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	switch bv := b.(type) {
	case map[string]any:
		av, ok := a.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range bv {
			if av[k] != v {
				return false
			}
		}
		return true
	case []any:
		av, ok := a.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range bv {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
