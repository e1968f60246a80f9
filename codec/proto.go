package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Proto is a Codec for values implementing proto.Message, matching the
// "content-type = application/grpc+proto" default of spec.md §6. The
// byte interpretation stays opaque to the engine; only this codec
// knows it is protobuf.
type Proto struct{}

func (Proto) Name() string { return "proto" }

func (Proto) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (Proto) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, msg)
}
