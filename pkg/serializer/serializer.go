// Package serializer abstracts the payload codec used for registered
// message/component types. The default implementation defers to each type's
// own wire.Writer/wire.Reader based Serialize/Deserialize pair; an optional
// protobuf-backed implementation lets hosts define components as protobuf
// messages instead.
package serializer

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Serializer marshals and unmarshals a registered payload. v is always a
// pointer to the registered Go type for Unmarshal.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// WireMarshaler is implemented by any type that knows how to serialize
// itself onto a wire.Writer-compatible byte form directly, without
// reflection. BinarySerializer uses this when present.
type WireMarshaler interface {
	MarshalBinary() ([]byte, error)
}

// WireUnmarshaler is the receive-side counterpart of WireMarshaler.
type WireUnmarshaler interface {
	UnmarshalBinary(data []byte) error
}

// BinarySerializer is the default Serializer: it requires every registered
// type to implement WireMarshaler/WireUnmarshaler (typically backed by
// pkg/wire), matching the hand-rolled codec style used for every built-in
// wire structure in this module.
type BinarySerializer struct{}

func (BinarySerializer) Marshal(v any) ([]byte, error) {
	m, ok := v.(WireMarshaler)
	if !ok {
		return nil, fmt.Errorf("serializer: %T does not implement WireMarshaler", v)
	}
	return m.MarshalBinary()
}

func (BinarySerializer) Unmarshal(data []byte, v any) error {
	u, ok := v.(WireUnmarshaler)
	if !ok {
		return fmt.Errorf("serializer: %T does not implement WireUnmarshaler", v)
	}
	return u.UnmarshalBinary(data)
}

// ProtoSerializer backs registered components with protobuf generated
// types, for hosts that prefer defining replicated state as .proto messages.
type ProtoSerializer struct{}

func (ProtoSerializer) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("serializer: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (ProtoSerializer) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("serializer: %T is not a proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}
