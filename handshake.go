package raknet

import (
	"time"
)

// handleOffline dispatches a single-shot offline (handshake/discovery)
// datagram, per spec.md §4.5. Behavior differs by Endpoint.role but both
// roles share the same wire messages.
func (ep *Endpoint) handleOffline(from Address, data []byte, now time.Time) {
	id := offlineID(data[0])

	switch id {
	case idUnconnectedPing, idUnconnectedPingOpenConns:
		ep.handleUnconnectedPing(from, data)
	case idUnconnectedPong:
		ep.handleUnconnectedPong(from, data)
	case idOpenConnectionRequest1:
		if ep.role == RoleServer {
			ep.handleOpenConnectionRequest1(from, data)
		}
	case idOpenConnectionResponse1:
		if ep.role == RoleClient {
			ep.handleOpenConnectionResponse1(from, data)
		}
	case idOpenConnectionRequest2:
		if ep.role == RoleServer {
			ep.handleOpenConnectionRequest2(from, data, now)
		}
	case idOpenConnectionResponse2:
		if ep.role == RoleClient {
			ep.handleOpenConnectionResponse2(from, data, now)
		}
	case idIncompatibleProtocolVersion, idConnectionBanned, idNoFreeIncomingConnections, idAlreadyConnected:
		ep.failPendingConnect(from, handshakeErrorFor(id))
	}
}

func handshakeErrorFor(id offlineID) error {
	switch id {
	case idIncompatibleProtocolVersion:
		return errIncompatibleProtocolVersion
	case idConnectionBanned:
		return ErrBanned
	case idNoFreeIncomingConnections:
		return ErrServerFull
	case idAlreadyConnected:
		return ErrAlreadyConnected
	default:
		return ErrNotConnected
	}
}

var errIncompatibleProtocolVersion = newSimpleError("incompatible protocol version")

func (ep *Endpoint) failPendingConnect(from Address, err error) {
	ep.resolvePendingConnect(from, connectResult{err: err})
}

// resolvePendingConnect delivers result to the Connect call waiting on
// from, if any, and clears the pending entry so it fires at most once.
func (ep *Endpoint) resolvePendingConnect(from Address, result connectResult) {
	ep.mu.Lock()
	ch, ok := ep.pendingConnect[from.String()]
	if ok {
		delete(ep.pendingConnect, from.String())
	}
	ep.mu.Unlock()
	if ok {
		ch <- result
	}
}

func (ep *Endpoint) handleUnconnectedPing(from Address, data []byte) {
	if !ep.cfg.BroadcastingEnabled {
		return
	}
	msg, err := decodeUnconnectedPing(data)
	if err != nil {
		return
	}
	if msg.OpenConns && ep.cfg.MaxConnections >= 0 && ep.connectionCount() >= ep.cfg.MaxConnections {
		return
	}

	identifier := ep.cfg.Identifier
	if ep.sink.HandlePing != nil {
		if custom := ep.sink.HandlePing(from); custom != nil {
			identifier = custom
		}
	}

	pong := encodeUnconnectedPong(unconnectedPong{
		Timestamp:  msg.Timestamp,
		ServerGUID: ep.guid,
		Identifier: identifier,
	})
	ep.writeRaw(from, pong)
}

// handleUnconnectedPong delivers a reply to one of our own UnconnectedPing
// broadcasts to whatever Discoverer is currently attached, if any; with no
// Discoverer attached the reply is simply ignored (spec.md has no peer for
// an offline message, so there is nothing else to do with it).
func (ep *Endpoint) handleUnconnectedPong(from Address, data []byte) {
	pong, err := decodeUnconnectedPong(data)
	if err != nil {
		return
	}
	ep.pongMu.Lock()
	handler := ep.pongHandler
	ep.pongMu.Unlock()
	if handler != nil {
		handler(from, pong)
	}
}

// handleOpenConnectionRequest1 implements spec.md §4.5's first handshake
// round: protocol/ban/capacity checks, then OpenConnectionResponse1.
func (ep *Endpoint) handleOpenConnectionRequest1(from Address, data []byte) {
	req, err := decodeOpenConnectionRequest1(data)
	if err != nil {
		return
	}

	if req.ProtocolVersion != ProtocolVersion {
		ep.writeRaw(from, encodeSingleByteOffline(idIncompatibleProtocolVersion))
		return
	}
	if ep.isBanned(from) {
		ep.writeRaw(from, encodeSingleByteOffline(idConnectionBanned))
		return
	}
	if ep.cfg.MaxConnections >= 0 && ep.connectionCount() >= ep.cfg.MaxConnections {
		ep.writeRaw(from, encodeSingleByteOffline(idNoFreeIncomingConnections))
		return
	}
	if existing := ep.peerByAddr(from); existing != nil && existing.State() == StateLoggedIn {
		ep.removePeer(existing, ReasonClosedByApp)
	}

	mtu := req.MTU
	if mtu > ep.cfg.MaximumTransferUnit {
		mtu = ep.cfg.MaximumTransferUnit
	}
	if mtu < MinMTU {
		mtu = MinMTU
	}

	resp := encodeOpenConnectionResponse1(openConnectionResponse1{ServerGUID: ep.guid, MTU: uint16(mtu)})
	ep.writeRaw(from, resp)
}

func (ep *Endpoint) handleOpenConnectionRequest2(from Address, data []byte, now time.Time) {
	req, err := decodeOpenConnectionRequest2(data)
	if err != nil {
		return
	}
	if ep.isBanned(from) {
		ep.writeRaw(from, encodeSingleByteOffline(idConnectionBanned))
		return
	}

	mtu := int(req.ClientMTU)
	if mtu > ep.cfg.MaximumTransferUnit {
		mtu = ep.cfg.MaximumTransferUnit
	}
	if mtu < MinMTU {
		mtu = MinMTU
	}

	p := newPeer(ep, from, RoleServer, req.ClientGUID, mtu)
	p.handshakeAt = now
	ep.addPeer(p)

	resp := encodeOpenConnectionResponse2(openConnectionResponse2{
		ServerGUID:    ep.guid,
		ClientAddress: from,
		MTU:           uint16(mtu),
	})
	ep.writeRaw(from, resp)

	ep.dispatch(func() { ep.sink.safeOnConnect(p) })
}

func (ep *Endpoint) handleOpenConnectionResponse1(from Address, data []byte) {
	resp, err := decodeOpenConnectionResponse1(data)
	if err != nil {
		return
	}

	ep.mu.Lock()
	_, pending := ep.pendingConnect[from.String()]
	ep.mu.Unlock()
	if !pending {
		return
	}

	req2 := encodeOpenConnectionRequest2(openConnectionRequest2{
		ServerAddress: from,
		ClientMTU:     resp.MTU,
		ClientGUID:    ep.guid,
	})
	ep.writeRaw(from, req2)
}

func (ep *Endpoint) handleOpenConnectionResponse2(from Address, data []byte, now time.Time) {
	resp, err := decodeOpenConnectionResponse2(data)
	if err != nil {
		return
	}

	p := newPeer(ep, from, RoleClient, resp.ServerGUID, int(resp.MTU))
	p.handshakeAt = now
	ep.addPeer(p)
	p.setState(StateHandshaking)

	cr := encodeConnectionRequest(connectionRequest{ClientGUID: ep.guid, Timestamp: ep.relativeTime()})
	p.Send(Reliable, 0, cr)

	ep.dispatch(func() { ep.sink.safeOnConnect(p) })
	ep.resolvePendingConnect(from, connectResult{peer: p})
}

// connectedPingPongSize is the exact wire length of a CONNECTED_PING body
// (1 id byte + one 8-byte timestamp) and the minimum length accepted for a
// CONNECTED_PONG (which this package writes with two timestamps, 17 bytes);
// used to tell a genuine keep-alive apart from a user payload that merely
// happens to start with the same id byte.
const connectedPingPongSize = 1 + 8

// handleHandshakeMessage processes the connected-datagram handshake and
// liveness messages (ConnectionRequest, ConnectionRequestAccepted,
// NewIncomingConnection, CONNECTED_PING/PONG, disconnection notification)
// once they're delivered by the reliability engine as ordinary channel-0
// payloads. Called from handleConnectedDatagram's delivery loop in
// recv.go.
//
// These control messages share their first byte with whatever id space
// the application chooses for its own payloads, so every branch below is
// gated by the peer's current state and/or the message's exact wire
// length before it is allowed to intercept anything — an application
// payload that doesn't match a control message's shape always falls
// through to return false and reaches the caller's OnMessage instead.
func (ep *Endpoint) handleHandshakeMessage(p *Peer, payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	state := p.State()

	switch offlineID(payload[0]) {
	case idConnectionRequest:
		if ep.role != RoleServer || state == StateLoggedIn {
			return false
		}
		req, err := decodeConnectionRequest(payload)
		if err != nil {
			return false
		}
		p.setState(StateHandshaking)

		now := ep.relativeTime()
		accepted := encodeConnectionRequestAccepted(connectionRequestAccepted{
			ClientAddress: p.addr,
			RequestTime:   req.Timestamp,
			Time:          now,
		})
		p.Send(Reliable, 0, accepted)
		return true

	case idConnectionRequestAccepted:
		if ep.role != RoleClient || state == StateLoggedIn {
			return false
		}
		_, err := decodeConnectionRequestAccepted(payload)
		if err != nil {
			return false
		}
		p.setState(StateLoggedIn)

		nic := encodeNewIncomingConnection(newIncomingConnection{
			ServerAddress: p.addr,
			RequestTime:   ep.relativeTime(),
			Time:          ep.relativeTime(),
		})
		p.Send(Reliable, 0, nic)
		ep.dispatch(func() { ep.sink.safeOnLogin(p) })
		return true

	case idNewIncomingConnection:
		if ep.role != RoleServer || state == StateLoggedIn {
			return false
		}
		if _, err := decodeNewIncomingConnection(payload); err != nil {
			return false
		}
		p.setState(StateLoggedIn)
		ep.dispatch(func() { ep.sink.safeOnLogin(p) })
		return true

	case idDisconnectionNotification:
		if len(payload) != 1 {
			return false
		}
		ep.removePeer(p, ReasonClosedByPeer)
		return true

	case idConnectedPing:
		if len(payload) != connectedPingPongSize {
			return false
		}
		now := ep.relativeTime()
		pong := make([]byte, 1+8+8)
		pong[0] = byte(idConnectedPong)
		be.PutUint64(pong[1:9], be.Uint64(payload[1:9]))
		be.PutUint64(pong[9:17], now)
		p.Send(Unreliable, 0, pong)
		return true

	case idConnectedPong:
		if len(payload) < connectedPingPongSize {
			return false
		}
		return true
	}
	return false
}

// maybeKeepAliveLocked sends a CONNECTED_PING if no message has been queued
// for this peer (Peer.lastOutbound) for KeepAliveInterval — an active peer
// that is already being sent ordinary messages never needs a synthetic one.
// ACK/NACK datagrams and retransmissions do not count as queued messages.
// Must be called with p.mu held.
func (p *Peer) maybeKeepAliveLocked(now time.Time) {
	if now.Sub(p.lastOutbound) < KeepAliveInterval {
		return
	}

	ping := make([]byte, 9)
	ping[0] = byte(idConnectedPing)
	be.PutUint64(ping[1:9], uint64(now.UnixMilli()))

	m := encapsulated{Reliability: Reliable, OrderChannel: 0, Payload: ping}
	m.ReliableIndex = p.outReliableIdx
	p.outReliableIdx++
	p.queueOutbound(m, 0, Reliable)
}
