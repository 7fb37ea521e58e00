package runtime

import (
	"fmt"
	"time"

	"github.com/appnet-org/netplay/pkg/conn"
	"github.com/appnet-org/netplay/pkg/logging"
	"github.com/appnet-org/netplay/pkg/metadata"
	"github.com/appnet-org/netplay/pkg/packetbuilder"
	"github.com/appnet-org/netplay/pkg/transport"
	"github.com/appnet-org/netplay/pkg/wire"
	"go.uber.org/zap"
)

// ClientVersion is stamped into every connect request's handshake metadata
// under the "client_version" key, so a server can log or reject connections
// from an incompatible build without needing a separate wire message.
var ClientVersion = "dev"

// connectRetryInterval is how often a client re-sends its connect token
// while waiting for a response, guarding against the initial request being
// lost on the unreliable transport.
const connectRetryInterval = 500 * time.Millisecond

// Connect begins a client-side handshake to addr using token, a connect
// token obtained out-of-band from a credential issuer (spec.md §1). Connect
// is non-blocking: it returns immediately once Send has queued the first
// connect request, and the connection reaches Connected asynchronously as
// Receive processes the server's response.
func (p *Peer) Connect(addr transport.Addr, token []byte) (conn.PeerId, error) {
	if p.role != RoleClient {
		return conn.PeerId{}, fmt.Errorf("runtime: Connect is client-only")
	}
	if !p.frozen {
		return conn.PeerId{}, fmt.Errorf("runtime: Start must be called before Connect")
	}
	parsed, err := conn.ParseToken(token)
	if err != nil {
		return conn.PeerId{}, err
	}
	ps, err := conn.OpenPrivateSection(parsed)
	if err != nil {
		return conn.PeerId{}, err
	}
	id := conn.PeerId{IsServer: true}
	pc := p.newConnState(addr, id, p.cfg.KeepAliveInterval, p.cfg.DisconnectTimeout, p.onRelease(addr))
	pc.pendingToken = token
	_ = ps // validated above; client doesn't otherwise need its own private section contents
	p.conns[addr.String()] = pc
	return id, nil
}

// Disconnect begins a graceful disconnect for id.
func (p *Peer) Disconnect(id conn.PeerId) {
	pc, ok := p.find(id)
	if !ok {
		return
	}
	pc.connection.BeginDisconnect()
}

func (p *Peer) onRelease(addr transport.Addr) conn.ReleaseFunc {
	return func(reason string) {
		if pc, ok := p.conns[addr.String()]; ok {
			p.log.Info("connection released", zap.String("addr", addr.String()), zap.String("reason", reason))
			p.repSenderForgetAll(pc)
			delete(p.conns, addr.String())
		}
	}
}

func (p *Peer) repSenderForgetAll(pc *peerConn) {
	pc.repSender.Forget(pc.id)
}

// sendConnectRequest (re)sends the client's pending connect token, gated by
// connectRetryInterval.
func (p *Peer) sendConnectRequest(pc *peerConn, now time.Time) {
	if pc.connection.State() != conn.Connecting {
		return
	}
	if now.Sub(pc.lastConnectSent) < connectRetryInterval {
		return
	}
	md := metadata.New()
	md.Set("client_version", ClientVersion)
	encodedMD := metadata.MetadataCodec{}.Encode(md)

	w := wire.NewWriter(p.pool.GetSize(0))
	packetbuilder.Header{Kind: packetbuilder.KindConnectRequest}.Encode(w)
	w.WriteVarint(uint64(len(pc.pendingToken)))
	w.WriteBytes(pc.pendingToken)
	w.WriteBytes(encodedMD)
	if err := p.xport.Send(pc.addr, w.Bytes()); err != nil {
		logging.Debug("connect request send failed", zap.Error(err))
		return
	}
	pc.lastConnectSent = now
	if pc.connection.State() == conn.Disconnected {
		pc.connection.BeginConnecting(now)
	}
}

// handleConnectRequest is the server-side handshake entry: validate the
// offered token and either admit the client (sending ConnectResponse) or
// deny it (sending ConnectDenied), per spec.md §4.10/§7.
func (p *Peer) handleConnectRequest(addr transport.Addr, r *wire.Reader, now time.Time) {
	tokenLen, err := r.ReadVarint()
	if err != nil {
		return
	}
	raw, err := r.ReadBytes(int(tokenLen))
	if err != nil {
		return
	}
	if mdBytes, err := r.ReadBytes(r.Remaining()); err == nil {
		if md, err := (metadata.MetadataCodec{}).Decode(mdBytes); err == nil {
			if v, ok := md.Get("client_version"); ok {
				p.log.Debug("connect request", zap.String("addr", addr.String()), zap.String("client_version", v))
			}
		}
	}
	token, err := conn.ParseToken(raw)
	if err != nil {
		p.denyHandshake(addr, conn.DenyTokenInvalid)
		return
	}
	ps, err := conn.OpenPrivateSection(token)
	if err != nil {
		p.denyHandshake(addr, conn.DenyTokenInvalid)
		return
	}
	if ps.TimeoutSeconds <= 0 {
		p.denyHandshake(addr, conn.DenyTokenExpired)
		return
	}

	if existing, ok := p.connByAddr(addr); ok && existing.connection.State() == conn.Connected {
		p.sendConnectResponse(addr, existing.id)
		return
	}
	p.nextCID++
	id := conn.PeerId{IsServer: false, ClientID: p.nextCID}
	pc := p.newConnState(addr, id, p.cfg.KeepAliveInterval, p.cfg.DisconnectTimeout, p.onRelease(addr))
	pc.connection.BeginConnecting(now)
	pc.connection.CompleteHandshake(now)
	p.conns[addr.String()] = pc
	p.sendConnectResponse(addr, id)
	p.log.Info("client connected", zap.String("addr", addr.String()), zap.Uint64("client_id", id.ClientID))
}

func (p *Peer) denyHandshake(addr transport.Addr, reason conn.DenialReason) {
	w := wire.NewWriter(p.pool.GetSize(0))
	packetbuilder.Header{Kind: packetbuilder.KindConnectDenied}.Encode(w)
	w.WriteU8(uint8(reason))
	_ = p.xport.Send(addr, w.Bytes())
}

func (p *Peer) sendConnectResponse(addr transport.Addr, id conn.PeerId) {
	w := wire.NewWriter(p.pool.GetSize(0))
	packetbuilder.Header{Kind: packetbuilder.KindConnectResponse}.Encode(w)
	w.WriteU64(id.ClientID)
	_ = p.xport.Send(addr, w.Bytes())
}

// handleConnectResponse completes the client-side handshake.
func (p *Peer) handleConnectResponse(addr transport.Addr, r *wire.Reader, now time.Time) {
	pc, ok := p.connByAddr(addr)
	if !ok || pc.connection.State() != conn.Connecting {
		return
	}
	clientID, err := r.ReadU64()
	if err != nil {
		return
	}
	pc.connection.CompleteHandshake(now)
	p.log.Info("connected to server", zap.String("addr", addr.String()), zap.Uint64("client_id", clientID))
}

func (p *Peer) handleConnectDenied(addr transport.Addr, r *wire.Reader) {
	pc, ok := p.connByAddr(addr)
	if !ok {
		return
	}
	reasonByte, err := r.ReadU8()
	reason := conn.DenyInternalError
	if err == nil {
		reason = conn.DenialReason(reasonByte)
	}
	pc.connection.DenyHandshake(reason)
}
