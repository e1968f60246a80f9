package codec

import "encoding/json"

// JSON is a Codec backed by encoding/json. It is the default codec for
// tests and for services whose payloads are plain Go structs.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
