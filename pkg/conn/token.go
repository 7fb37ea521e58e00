package conn

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/appnet-org/netplay/pkg/wire"
)

// Netcode 1.02 token layout constants, per spec.md §6. Re-implementers must
// match these exactly for interoperability with existing dedicated-server
// infrastructure; this module only parses the layout and opens the private
// section, it does not issue tokens (credential issuance is an external
// collaborator per spec.md §1).
const (
	VersionPrefixSize    = 13
	ConnectTokenSize     = 2048
	NonceSize            = 24
	PrivateSectionSize   = 1024
	privateSectionOffset = VersionPrefixSize + NonceSize
)

// cachedAEAD caches the AES-GCM instance built from the server's private
// key so opening many tokens doesn't rebuild the cipher each time. Adapted
// from pkg/transport/encryption.go's cached publicGCM/privateGCM pattern,
// narrowed to the single key this module needs: the token's private
// section. Payload traffic itself is never encrypted by this module (see
// spec.md's Non-goals).
type cachedAEAD struct {
	mu  sync.RWMutex
	gcm cipher.AEAD
	key []byte
}

var tokenAEAD cachedAEAD

// SetPrivateKey installs the server's token private key, building and
// caching its AES-GCM instance. Must be called once before OpenPrivateSection.
func SetPrivateKey(key []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("conn: invalid token private key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("conn: failed to build token GCM: %w", err)
	}
	tokenAEAD.mu.Lock()
	tokenAEAD.gcm = gcm
	tokenAEAD.key = key
	tokenAEAD.mu.Unlock()
	return nil
}

// Token is a parsed (but not yet decrypted) connect token.
type Token struct {
	VersionPrefix [VersionPrefixSize]byte
	Nonce         [NonceSize]byte
	Private       []byte // encrypted private section, PrivateSectionSize+overhead bytes
}

// ParseToken splits the raw 2048-byte connect token into its version
// prefix, nonce and encrypted private section.
func ParseToken(raw []byte) (Token, error) {
	var t Token
	if len(raw) != ConnectTokenSize {
		return t, fmt.Errorf("conn: connect token must be %d bytes, got %d", ConnectTokenSize, len(raw))
	}
	copy(t.VersionPrefix[:], raw[:VersionPrefixSize])
	copy(t.Nonce[:], raw[VersionPrefixSize:privateSectionOffset])
	t.Private = raw[privateSectionOffset:]
	return t, nil
}

// PrivateSection is the decrypted payload of a connect token's private
// section: the client id, connection timeout, and server address list, per
// spec.md §6.
type PrivateSection struct {
	ClientID       uint64
	TimeoutSeconds int32
	ServerAddrs    []string
}

// OpenPrivateSection decrypts and parses t's private section using the
// server's token private key (installed via SetPrivateKey) and t's nonce.
// A failure here is a Handshake error per spec.md §7: the caller rejects
// the connection attempt with a denial reason, it does not panic or retry.
func OpenPrivateSection(t Token) (PrivateSection, error) {
	var ps PrivateSection

	tokenAEAD.mu.RLock()
	gcm := tokenAEAD.gcm
	tokenAEAD.mu.RUnlock()
	if gcm == nil {
		return ps, fmt.Errorf("conn: token private key not configured")
	}

	nonce := t.Nonce[:gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, t.Private, nil)
	if err != nil {
		return ps, fmt.Errorf("conn: token private section authentication failed: %w", err)
	}

	r := wire.NewReader(plaintext)
	clientID, err := r.ReadU64()
	if err != nil {
		return ps, err
	}
	timeoutRaw, err := r.ReadU32()
	if err != nil {
		return ps, err
	}
	count, err := r.ReadU8()
	if err != nil {
		return ps, err
	}
	addrs := make([]string, 0, count)
	for i := uint8(0); i < count; i++ {
		alen, err := r.ReadU8()
		if err != nil {
			return ps, err
		}
		ab, err := r.ReadBytes(int(alen))
		if err != nil {
			return ps, err
		}
		addrs = append(addrs, string(ab))
	}

	ps.ClientID = clientID
	ps.TimeoutSeconds = int32(timeoutRaw)
	ps.ServerAddrs = addrs
	return ps, nil
}
