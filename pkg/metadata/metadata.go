// Package metadata carries small key/value handshake metadata (client
// version string, requested channel set) alongside a connection's token
// exchange, the same way the teacher's per-call metadata codec rides
// alongside every RPC frame.
package metadata

import (
	"context"

	"github.com/appnet-org/netplay/pkg/wire"
)

// MD is an ordered set of key/value pairs. Order is preserved on the wire so
// both peers can agree on key order without a map's nondeterministic
// iteration affecting the encoded bytes.
type MD struct {
	pairs [][2]string
}

func New() *MD { return &MD{} }

func (m *MD) Set(key, value string) {
	for i, p := range m.pairs {
		if p[0] == key {
			m.pairs[i][1] = value
			return
		}
	}
	m.pairs = append(m.pairs, [2]string{key, value})
}

func (m *MD) Get(key string) (string, bool) {
	for _, p := range m.pairs {
		if p[0] == key {
			return p[1], true
		}
	}
	return "", false
}

type mdKey struct{}

// NewOutgoingContext attaches metadata to ctx for an upcoming handshake.
func NewOutgoingContext(ctx context.Context, md *MD) context.Context {
	return context.WithValue(ctx, mdKey{}, md)
}

// FromOutgoingContext retrieves metadata previously attached with
// NewOutgoingContext, or an empty MD if none was attached.
func FromOutgoingContext(ctx context.Context) *MD {
	if md, ok := ctx.Value(mdKey{}).(*MD); ok {
		return md
	}
	return New()
}

// MetadataCodec encodes/decodes MD as a length-prefixed sequence of
// (keyLen varint, key bytes, valueLen varint, value bytes) pairs preceded by
// a varint pair count.
type MetadataCodec struct{}

func (MetadataCodec) Encode(md *MD) []byte {
	w := wire.NewWriter(nil)
	w.WriteVarint(uint64(len(md.pairs)))
	for _, p := range md.pairs {
		w.WriteVarint(uint64(len(p[0])))
		w.WriteBytes([]byte(p[0]))
		w.WriteVarint(uint64(len(p[1])))
		w.WriteBytes([]byte(p[1]))
	}
	return w.Bytes()
}

func (MetadataCodec) Decode(data []byte) (*MD, error) {
	r := wire.NewReader(data)
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	md := New()
	for i := uint64(0); i < count; i++ {
		klen, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		kb, err := r.ReadBytes(int(klen))
		if err != nil {
			return nil, err
		}
		vlen, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		vb, err := r.ReadBytes(int(vlen))
		if err != nil {
			return nil, err
		}
		md.Set(string(kb), string(vb))
	}
	return md, nil
}
