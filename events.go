package raknet

// EventSink is the single capability an application passes in at endpoint
// construction to receive lifecycle and data events, replacing a
// subscription-list/reflection dispatcher with a fixed set of typed
// callbacks (spec.md §9 REDESIGN FLAGS). Any field left nil is simply not
// called. Handlers are invoked from a goroutine separate from the tick
// loop; a handler must not block indefinitely and must not call back into
// the Endpoint synchronously from within itself without care for
// re-entrancy.
type EventSink struct {
	// OnConnect fires once a Peer completes the offline handshake
	// (state CONNECTED) and is placed in the peer map.
	OnConnect func(p *Peer)

	// OnLogin fires once a Peer reaches StateLoggedIn.
	OnLogin func(p *Peer)

	// OnDisconnect fires once a Peer is removed from the peer map.
	OnDisconnect func(p *Peer, reason DisconnectReason)

	// OnMessage fires for each user payload delivered in wire order.
	OnMessage func(p *Peer, ch Channel, payload []byte)

	// OnAcknowledge fires at most once per *_WITH_ACK_RECEIPT send, after
	// its covering ACK is processed.
	OnAcknowledge func(r ReceiptHandle)

	// OnNotAcknowledge fires for UNRELIABLE_WITH_ACK_RECEIPT sends whose
	// covering datagram was NACKed.
	OnNotAcknowledge func(r ReceiptHandle)

	// OnHandlerError fires when an application callback panics or an
	// error surfaces from code that isn't tied to one peer.
	OnHandlerError func(addr Address, cause error)

	// OnPeerError fires for a per-peer runtime error that does not by
	// itself warrant disconnecting the peer.
	OnPeerError func(p *Peer, cause error)

	// HandlePing is called for an UnconnectedPing when broadcasting is
	// enabled; returning identifier bytes overrides Config.Identifier for
	// that single reply.
	HandlePing func(sender Address) (identifier []byte)
}

func (s EventSink) safeOnConnect(p *Peer) {
	if s.OnConnect != nil {
		s.OnConnect(p)
	}
}

func (s EventSink) safeOnLogin(p *Peer) {
	if s.OnLogin != nil {
		s.OnLogin(p)
	}
}

func (s EventSink) safeOnDisconnect(p *Peer, reason DisconnectReason) {
	if s.OnDisconnect != nil {
		s.OnDisconnect(p, reason)
	}
}

func (s EventSink) safeOnMessage(p *Peer, ch Channel, payload []byte) {
	if s.OnMessage != nil {
		s.OnMessage(p, ch, payload)
	}
}

func (s EventSink) safeOnAcknowledge(r ReceiptHandle) {
	if s.OnAcknowledge != nil {
		s.OnAcknowledge(r)
	}
}

func (s EventSink) safeOnNotAcknowledge(r ReceiptHandle) {
	if s.OnNotAcknowledge != nil {
		s.OnNotAcknowledge(r)
	}
}

func (s EventSink) safeOnHandlerError(addr Address, cause error) {
	if s.OnHandlerError != nil {
		s.OnHandlerError(addr, cause)
	}
}

func (s EventSink) safeOnPeerError(p *Peer, cause error) {
	if s.OnPeerError != nil {
		s.OnPeerError(p, cause)
	}
}

// ReceiptHandle is returned by Endpoint.Send for a *_WITH_ACK_RECEIPT
// reliability and later surfaced via OnAcknowledge/OnNotAcknowledge.
type ReceiptHandle struct {
	Peer  *Peer
	ID    uint64
}

// RecipientKind tags which form a Recipient names a peer by.
type RecipientKind uint8

const (
	ByAddress RecipientKind = iota
	ByGUID
	ByPeerHandle
)

// Recipient is a tagged union of the ways a caller may name a send target,
// replacing dozens of overloaded send-message entry points (spec.md §9
// REDESIGN FLAGS) with one canonical shape. Convenience constructors below
// live in the package for ergonomics but add no overload surface to
// Endpoint.Send itself.
type Recipient struct {
	kind RecipientKind
	addr Address
	guid GUID
	peer *Peer
}

// ToAddr names a recipient by network address.
func ToAddr(a Address) Recipient { return Recipient{kind: ByAddress, addr: a} }

// ToGUID names a recipient by its remote GUID.
func ToGUID(g GUID) Recipient { return Recipient{kind: ByGUID, guid: g} }

// ToPeer names a recipient by an already-resolved Peer handle.
func ToPeer(p *Peer) Recipient { return Recipient{kind: ByPeerHandle, peer: p} }
