package raknet

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// TickPeriod bounds how often the tick loop drives retransmission,
// ACK/NACK flushing, and timeout checks for every peer (spec.md §4.6: "The
// tick period is ≤ 10 ms").
const TickPeriod = 8 * time.Millisecond

// Endpoint owns a single UDP socket, the remote-address-to-Peer map, the
// ban/block lists, and the tick loop that drives every Peer's reliability
// engine. A single Endpoint plays either the server or client role; the
// role only changes offline handshake behavior, not the reliability
// engine (spec.md §4.6).
type Endpoint struct {
	role Role
	guid GUID
	cfg  Config
	sink EventSink // wraps the caller's EventSink with panic recovery

	pc        net.PacketConn
	startTime time.Time

	mu         sync.RWMutex
	addrToPeer map[string]*Peer
	guidToAddr map[GUID]string

	banned   map[string]bool
	banStore *banStore
	blocked  map[string]time.Time

	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	events   chan func()

	pendingConnect map[string]chan connectResult

	pongMu      sync.Mutex
	pongHandler func(Address, unconnectedPong)
}

type connectResult struct {
	peer *Peer
	err  error
}

// NewEndpoint constructs an Endpoint that has not yet bound a socket or
// started its tick loop; call ListenAndServe (server) or Connect (client)
// to do so.
func NewEndpoint(cfg Config, role Role, sink EventSink) *Endpoint {
	cfg = cfg.withDefaults()
	ep := &Endpoint{
		role:           role,
		guid:           GUID(rand.Uint64()),
		cfg:            cfg,
		addrToPeer:     make(map[string]*Peer),
		guidToAddr:     make(map[GUID]string),
		banned:         make(map[string]bool),
		blocked:        make(map[string]time.Time),
		pendingConnect: make(map[string]chan connectResult),
		events:         make(chan func(), 256),
	}
	ep.sink = ep.wrapSink(sink)
	if cfg.BanStorePath != "" {
		if bs, err := openBanStore(cfg.BanStorePath); err == nil {
			ep.banStore = bs
			for ip, reason := range bs.list() {
				ep.banned[ip] = true
				_ = reason
			}
		}
	}
	return ep
}

func (ep *Endpoint) now() time.Time { return time.Now() }

// setPongHandler installs the callback a Discoverer uses to observe
// UnconnectedPong replies to its own broadcast pings. Only one handler is
// supported at a time; a nil f detaches it.
func (ep *Endpoint) setPongHandler(f func(Address, unconnectedPong)) {
	ep.pongMu.Lock()
	ep.pongHandler = f
	ep.pongMu.Unlock()
}

// relativeTime returns milliseconds since the Endpoint started, the unit
// RakNet's handshake timestamp fields carry.
func (ep *Endpoint) relativeTime() uint64 {
	return uint64(time.Since(ep.startTime).Milliseconds())
}

// ListenAndServe binds a UDP socket at cfg.BindAddress (a wildcard address
// on an ephemeral port if it is empty), starts the read, tick and event
// loops in the background, and returns. A bind failure is returned
// synchronously (spec.md §7). The loops run until Shutdown is called; read
// errors on the socket do not stop them.
func (ep *Endpoint) ListenAndServe() error {
	ep.mu.Lock()
	if ep.running {
		ep.mu.Unlock()
		return ErrAlreadyRunning
	}
	bind := ep.cfg.BindAddress
	if bind == "" {
		bind = ":0"
	}
	pc, err := net.ListenPacket("udp", bind)
	if err != nil {
		ep.mu.Unlock()
		return fmt.Errorf("raknet: listen: %w", err)
	}
	ep.pc = pc
	ep.startTime = time.Now()
	ep.running = true
	ep.stopCh = make(chan struct{})
	ep.mu.Unlock()

	ep.wg.Add(3)
	go ep.readLoop()
	go ep.tickLoop()
	go ep.eventLoop()

	return nil
}

// Connect dials addr as a client, running the offline handshake to
// completion and returning the resulting Peer once OnConnect would fire.
func (ep *Endpoint) Connect(ctx context.Context, addr string) (*Peer, error) {
	ep.mu.Lock()
	if !ep.running {
		bind := ep.cfg.BindAddress
		if bind == "" {
			bind = ":0"
		}
		pc, err := net.ListenPacket("udp", bind)
		if err != nil {
			ep.mu.Unlock()
			return nil, fmt.Errorf("raknet: listen: %w", err)
		}
		ep.pc = pc
		ep.startTime = time.Now()
		ep.running = true
		ep.stopCh = make(chan struct{})
		ep.mu.Unlock()

		ep.wg.Add(3)
		go ep.readLoop()
		go ep.tickLoop()
		go ep.eventLoop()
	} else {
		ep.mu.Unlock()
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	remote := addressFromUDP(raddr)

	result := make(chan connectResult, 1)
	ep.mu.Lock()
	ep.pendingConnect[remote.String()] = result
	ep.mu.Unlock()

	req1 := encodeOpenConnectionRequest1(ep.cfg.MaximumTransferUnit)
	if err := ep.writeRaw(remote, req1); err != nil {
		return nil, err
	}

	select {
	case r := <-result:
		return r.peer, r.err
	case <-ctx.Done():
		ep.mu.Lock()
		delete(ep.pendingConnect, remote.String())
		ep.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Shutdown stops the tick and read loops and closes the socket.
func (ep *Endpoint) Shutdown() error {
	ep.mu.Lock()
	if !ep.running {
		ep.mu.Unlock()
		return ErrNotRunning
	}
	ep.running = false
	close(ep.stopCh)
	pc := ep.pc
	ep.mu.Unlock()

	if pc != nil {
		pc.Close()
	}
	ep.wg.Wait()

	if ep.banStore != nil {
		ep.banStore.close()
	}
	return nil
}

func (ep *Endpoint) writeRaw(addr Address, data []byte) error {
	ep.mu.RLock()
	pc := ep.pc
	ep.mu.RUnlock()
	if pc == nil {
		return ErrNotRunning
	}
	_, err := pc.WriteTo(data, addr.netAddr())
	return err
}

// writeDatagram is called by Peer's outbound path to actually put bytes
// on the wire; a socket error is reported through OnHandlerError and is
// never fatal to the peer (reliable messages are resent by the normal
// retransmit path).
func (ep *Endpoint) writeDatagram(addr Address, data []byte) {
	if err := ep.writeRaw(addr, data); err != nil {
		ep.dispatch(func() { ep.sink.safeOnHandlerError(addr, fmt.Errorf("write: %w", err)) })
	}
}

func (ep *Endpoint) dispatch(f func()) {
	select {
	case ep.events <- f:
	default:
		// Event queue is saturated; run inline rather than drop an event,
		// at the cost of momentarily coupling caller and handler.
		f()
	}
}

func (ep *Endpoint) eventLoop() {
	defer ep.wg.Done()
	for {
		select {
		case f := <-ep.events:
			f()
		case <-ep.stopCh:
			return
		}
	}
}

func (ep *Endpoint) readLoop() {
	defer ep.wg.Done()
	buf := make([]byte, 65536)
	for {
		ep.mu.RLock()
		pc := ep.pc
		ep.mu.RUnlock()
		if pc == nil {
			return
		}

		n, raddr, err := pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-ep.stopCh:
				return
			default:
			}
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		udpAddr, ok := raddr.(*net.UDPAddr)
		if !ok {
			continue
		}
		ep.handlePacket(addressFromUDP(udpAddr), data)
	}
}

func (ep *Endpoint) handlePacket(from Address, data []byte) {
	if len(data) == 0 {
		return
	}

	if ep.isBlocked(from) {
		return
	}
	if ep.isBanned(from) {
		// Let the two handshake requests through so the offline handler
		// can answer them with CONNECTION_BANNED; drop everything else.
		id := offlineID(data[0])
		if id != idOpenConnectionRequest1 && id != idOpenConnectionRequest2 {
			return
		}
	}

	now := ep.now()

	if !isConnectedDatagram(data[0]) {
		ep.handleOffline(from, data, now)
		return
	}

	ep.mu.RLock()
	p := ep.addrToPeer[from.String()]
	ep.mu.RUnlock()
	if p == nil {
		return // connected datagram from an address with no peer: drop
	}

	if flood := p.touchRecv(now, ep.cfg.MaxPacketsPerSecond); flood {
		ep.evictFlooding(p, from)
		return
	}

	p.handleConnectedDatagram(data, now, ep.sink)
}

func (ep *Endpoint) tickLoop() {
	defer ep.wg.Done()
	t := time.NewTicker(TickPeriod)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ep.tick()
		case <-ep.stopCh:
			return
		}
	}
}

func (ep *Endpoint) tick() {
	now := ep.now()

	ep.mu.RLock()
	peers := make([]*Peer, 0, len(ep.addrToPeer))
	for _, p := range ep.addrToPeer {
		peers = append(peers, p)
	}
	ep.mu.RUnlock()

	for _, p := range peers {
		p.mu.Lock()
		p.retransmitDue(now)
		p.flushOutbound()
		p.flushAckNack()
		p.maybeKeepAliveLocked(now)
		p.mu.Unlock()

		if reason, timedOut := ep.checkLiveness(p, now); timedOut {
			ep.removePeer(p, reason)
		}
	}

	ep.pruneBlocks(now)
}

func (ep *Endpoint) checkLiveness(p *Peer, now time.Time) (DisconnectReason, bool) {
	timeout := ep.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if p.idleFor(now) >= timeout {
		return ReasonTimeout, true
	}
	return 0, false
}

func (ep *Endpoint) evictFlooding(p *Peer, addr Address) {
	dur := ep.cfg.FloodBlockDuration
	if dur <= 0 {
		dur = time.Minute
	}
	ep.Block(addr, dur)
	ep.removePeer(p, ReasonFlood)
}

// removePeer tears down a Peer: marks it closed, removes it from the peer
// map, and surfaces OnDisconnect (spec.md §3 Lifecycle). It sends nothing
// to the remote side; Disconnect sends the disconnection notification
// before calling it.
func (ep *Endpoint) removePeer(p *Peer, reason DisconnectReason) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.disconnectReason = reason
	p.mu.Unlock()

	ep.mu.Lock()
	delete(ep.addrToPeer, p.addr.String())
	if guid := p.GUID(); guid != 0 {
		delete(ep.guidToAddr, guid)
	}
	ep.mu.Unlock()

	ep.dispatch(func() { ep.sink.safeOnDisconnect(p, reason) })
}

// Disconnect gracefully disconnects p: it sends an UNRELIABLE
// DisconnectionNotification and immediately removes the peer (spec.md
// §4.5 "Disconnection").
func (ep *Endpoint) Disconnect(p *Peer, reason DisconnectReason) {
	p.mu.Lock()
	if !p.closed {
		seq := p.outDatagramSeq
		p.outDatagramSeq = p.outDatagramSeq.next()
		blob := encodeDisconnectionNotification()
		w := newWriter(len(blob) + 8)
		encodeEncapsulated(w, encapsulated{Reliability: Unreliable, OrderChannel: 0, Payload: blob})
		ep.writeDatagram(p.addr, encodeDataDatagram(seq, [][]byte{w.Bytes()}))
	}
	p.mu.Unlock()
	ep.removePeer(p, reason)
}

// Send resolves r to a Peer and submits a user message through its
// reliability engine (spec.md §6 send_message).
func (ep *Endpoint) Send(r Recipient, reliability Reliability, ch Channel, payload []byte) (*ReceiptHandle, error) {
	p, err := ep.resolve(r)
	if err != nil {
		return nil, err
	}
	return p.Send(reliability, ch, payload)
}

func (ep *Endpoint) resolve(r Recipient) (*Peer, error) {
	switch r.kind {
	case ByPeerHandle:
		if r.peer == nil {
			return nil, ErrNotConnected
		}
		return r.peer, nil
	case ByAddress:
		ep.mu.RLock()
		p := ep.addrToPeer[r.addr.String()]
		ep.mu.RUnlock()
		if p == nil {
			return nil, ErrNotConnected
		}
		return p, nil
	case ByGUID:
		ep.mu.RLock()
		addr, ok := ep.guidToAddr[r.guid]
		var p *Peer
		if ok {
			p = ep.addrToPeer[addr]
		}
		ep.mu.RUnlock()
		if p == nil {
			return nil, ErrUnknownGUID
		}
		return p, nil
	default:
		return nil, ErrNotConnected
	}
}

// Peers returns a snapshot of all currently connected/logged-in peers.
func (ep *Endpoint) Peers() []*Peer {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	out := make([]*Peer, 0, len(ep.addrToPeer))
	for _, p := range ep.addrToPeer {
		out = append(out, p)
	}
	return out
}

func (ep *Endpoint) addPeer(p *Peer) {
	ep.mu.Lock()
	ep.addrToPeer[p.addr.String()] = p
	if g := p.GUID(); g != 0 {
		ep.guidToAddr[g] = p.addr.String()
	}
	ep.mu.Unlock()
}

func (ep *Endpoint) peerByAddr(addr Address) *Peer {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.addrToPeer[addr.String()]
}

func (ep *Endpoint) connectionCount() int {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return len(ep.addrToPeer)
}
