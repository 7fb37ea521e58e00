package serializer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type binaryThing struct {
	N int
}

func (b binaryThing) MarshalBinary() ([]byte, error) {
	return []byte{byte(b.N)}, nil
}

func (b *binaryThing) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("binaryThing: bad length %d", len(data))
	}
	b.N = int(data[0])
	return nil
}

func TestBinarySerializerRoundTrip(t *testing.T) {
	var s BinarySerializer
	data, err := s.Marshal(binaryThing{N: 7})
	require.NoError(t, err)

	var out binaryThing
	require.NoError(t, s.Unmarshal(data, &out))
	require.Equal(t, 7, out.N)
}

func TestBinarySerializerRejectsNonWireType(t *testing.T) {
	var s BinarySerializer
	_, err := s.Marshal(42)
	require.Error(t, err)
}

func TestProtoSerializerRoundTrip(t *testing.T) {
	var s ProtoSerializer
	msg := wrapperspb.Int32(42)

	data, err := s.Marshal(msg)
	require.NoError(t, err)

	out := &wrapperspb.Int32Value{}
	require.NoError(t, s.Unmarshal(data, out))
	require.Equal(t, int32(42), out.Value)
}

func TestProtoSerializerRejectsNonProtoType(t *testing.T) {
	var s ProtoSerializer
	_, err := s.Marshal(binaryThing{})
	require.Error(t, err)
}
