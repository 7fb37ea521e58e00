// Package udp implements transport.Transport over a plain net.UDPConn.
// Grounded on the teacher's pkg/transport/transport.go UDPTransport (address
// resolution, buffer-pooled reads, write-to-addr send), restructured to a
// non-blocking Poll: each call sets an immediate read deadline rather than
// running an always-blocking background receive goroutine, per spec.md §5.
package udp

import (
	"errors"
	"net"
	"time"

	"github.com/appnet-org/netplay/pkg/common"
	"github.com/appnet-org/netplay/pkg/logging"
	"github.com/appnet-org/netplay/pkg/transport"
	"go.uber.org/zap"
)

// MaxDatagramSize bounds a single read; larger than any configured
// max_packet_bytes leaves headroom for transports with a bigger MTU.
const MaxDatagramSize = 4096

// Addr wraps *net.UDPAddr to satisfy transport.Addr.
type Addr struct {
	*net.UDPAddr
}

func (a Addr) String() string { return a.UDPAddr.String() }

// Transport is a UDP-backed transport.Transport.
type Transport struct {
	conn *net.UDPConn
	pool *common.BufferPool
}

// Listen binds a UDP socket at addr ("host:port", or ":0" for an ephemeral
// client port).
func Listen(addr string) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Transport{conn: conn, pool: common.NewBufferPool()}, nil
}

func (t *Transport) Send(addr transport.Addr, payload []byte) error {
	udpAddr, ok := addr.(Addr)
	if !ok {
		return errors.New("udp: Send called with a non-UDP address")
	}
	_, err := t.conn.WriteToUDP(payload, udpAddr.UDPAddr)
	if err != nil {
		logging.Error("udp send failed", zap.Error(err), zap.String("addr", udpAddr.String()))
	}
	return err
}

// Poll performs one non-blocking read: it sets an immediately-expired read
// deadline so ReadFromUDP returns right away with os.ErrDeadlineExceeded if
// nothing is queued, instead of blocking the caller's frame.
func (t *Transport) Poll() ([]byte, transport.Addr, bool) {
	buf := t.pool.GetSize(MaxDatagramSize)
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		t.pool.Put(buf)
		return nil, nil, false
	}
	n, from, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		t.pool.Put(buf)
		if isTimeout(err) {
			return nil, nil, false
		}
		logging.Debug("udp poll error", zap.Error(err))
		return nil, nil, false
	}
	return buf[:n], Addr{from}, true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

func (t *Transport) Close() error { return t.conn.Close() }
