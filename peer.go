package raknet

import (
	"net"
	"sync"
	"time"
)

// Liveness constants, standardized per spec.md §9 Open Questions: the
// teacher's own rudp package uses PingTimeout=5s/ConnTimeout=30s, but
// spec.md §6 pins different defaults, so Config carries them instead of
// reusing the teacher's constants verbatim.
const (
	KeepAliveInterval  = 1 * time.Second
	DefaultTimeout     = 10 * time.Second
	RetransmitInterval = 100 * time.Millisecond
)

// unackedMessage is a reliable encapsulated message awaiting its ACK,
// keyed by reliable index in Peer.outUnacked.
type unackedMessage struct {
	encoded  []byte
	chNo     Channel
	firstSent time.Time
	lastSent  time.Time
}

// Peer is a connection to a remote address while CONNECTED..LOGGED_IN.
// All exported methods are safe for concurrent use; the tick loop that
// advances a Peer's reliability engine holds epMu-independent peer-local
// locking only (spec.md §5: no operation suspends while holding more than
// one peer's state).
type Peer struct {
	ep   *Endpoint
	addr Address
	role Role

	mu         sync.Mutex
	state      State
	remoteGUID GUID
	mtu        int

	// outbound
	outDatagramSeq seqNum
	outReliableIdx uint32
	outSplitID     uint16
	outChans       [MaxChannels]*channelState
	outQueue       []encapsulated
	outUnacked     map[uint32]*unackedMessage
	datagramRel    map[seqNum][]uint32
	reliableRecpt  map[uint32]uint64
	unrelRecpt     map[seqNum][]uint64
	nextReceiptID  uint64

	// inbound
	inChans      [MaxChannels]*channelState
	inSplits     [MaxChannels]*inboundSplits
	recvReliable map[uint32]bool
	recvSeqSeen  map[seqNum]bool
	highestSeq   seqNum
	haveSeq      bool

	pendingACK  map[seqNum]bool
	pendingNACK map[seqNum]bool

	lastRecv       time.Time
	lastOutbound   time.Time
	recvWindowStart time.Time
	recvThisSecond int

	disconnectReason DisconnectReason
	closed           bool

	handshakeAt time.Time // when OpenConnectionRequest2/Response2 completed; recorded only, no timestamp field is built from it
}

func newPeer(ep *Endpoint, addr Address, role Role, remoteGUID GUID, mtu int) *Peer {
	p := &Peer{
		ep:           ep,
		addr:         addr,
		role:         role,
		state:        StateConnected,
		remoteGUID:   remoteGUID,
		mtu:          mtu,
		outUnacked:   make(map[uint32]*unackedMessage),
		datagramRel:  make(map[seqNum][]uint32),
		reliableRecpt: make(map[uint32]uint64),
		unrelRecpt:   make(map[seqNum][]uint64),
		recvReliable: make(map[uint32]bool),
		recvSeqSeen:  make(map[seqNum]bool),
		pendingACK:   make(map[seqNum]bool),
		pendingNACK:  make(map[seqNum]bool),
		lastRecv:     ep.now(),
		lastOutbound: ep.now(),
		recvWindowStart: ep.now(),
	}
	for i := range p.outChans {
		p.outChans[i] = newChannelState()
		p.inChans[i] = newChannelState()
		p.inSplits[i] = newInboundSplits()
	}
	return p
}

// Addr returns the Peer's remote network address.
func (p *Peer) Addr() Address { return p.addr }

// GUID returns the Peer's remote GUID.
func (p *Peer) GUID() GUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteGUID
}

// State returns the Peer's current state machine position.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// MTU returns the negotiated maximum transfer unit.
func (p *Peer) MTU() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mtu
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// touchRecv resets the liveness timer and increments the flood counter;
// it returns true if the per-second packet cap was exceeded.
func (p *Peer) touchRecv(now time.Time, maxPerSecond int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastRecv = now
	if now.Sub(p.recvWindowStart) >= time.Second {
		p.recvWindowStart = now
		p.recvThisSecond = 0
	}
	p.recvThisSecond++
	return maxPerSecond > 0 && p.recvThisSecond > maxPerSecond
}

func (p *Peer) idleFor(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastRecv)
}

// netAddr adapts an Address back to a net.Addr for socket writes.
func (a Address) netAddr() net.Addr { return a.UDPAddr() }
