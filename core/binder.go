package core

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Binder deserializes raw publish payloads into a Go value.
// Implement this interface for custom serialization formats (Avro, CBOR, etc.).
type Binder interface {
	Bind(data []byte, v any) error
}

// JSONBinder deserializes JSON payloads.
type JSONBinder struct{}

func (JSONBinder) Bind(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

// ProtoBinder deserializes protobuf payloads. The target must be a proto.Message.
type ProtoBinder struct {
	Options proto.UnmarshalOptions
}

func (b ProtoBinder) Bind(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("protobuf: %T is not a proto.Message", v)
	}
	if err := b.Options.Unmarshal(data, m); err != nil {
		return fmt.Errorf("protobuf: %w", err)
	}
	return nil
}
