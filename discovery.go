package raknet

import (
	"net"
	"sync"
	"time"
)

// DiscoveryMode controls which addresses a Discoverer pings and how it
// reacts to DISABLED, grounded on jraknet's discovery.Discovery /
// DiscoveryMode: toggling to DiscoveryDisabled forgets every server that
// was found so far, exactly as Discovery.setDiscoveryMode does.
type DiscoveryMode int

const (
	// DiscoveryDisabled stops broadcasting and forgets every discovered
	// server.
	DiscoveryDisabled DiscoveryMode = iota
	// DiscoveryOpenConnections only asks servers that still have a free
	// connection slot to reply (UNCONNECTED_PING_OPEN_CONNECTIONS).
	DiscoveryOpenConnections
	// DiscoveryAllConnections asks every server to reply regardless of
	// capacity (UNCONNECTED_PING).
	DiscoveryAllConnections
)

// DiscoveredServer is one server a Discoverer has heard an UnconnectedPong
// from, grounded on jraknet's DiscoveredServer.
type DiscoveredServer struct {
	Addr       Address
	GUID       GUID
	Identifier []byte
	LastSeen   time.Time
}

// DiscoveryListener receives Discoverer events; any field left nil is
// simply not called, mirroring jraknet's DiscoveryListener interface
// collapsed into a callback struct the way EventSink does for Endpoint.
type DiscoveryListener struct {
	OnServerDiscovered func(DiscoveredServer)
	OnServerUpdated    func(DiscoveredServer)
	OnServerForgotten  func(DiscoveredServer)
}

// discoveryInterval is how often a Discoverer re-broadcasts, matching
// jraknet's DiscoveryThread default of pinging once per second.
const discoveryInterval = 1 * time.Second

// Discoverer periodically broadcasts UnconnectedPing to a set of local
// broadcast ports and/or specific external server addresses and tracks
// who replies, grounded on jraknet's discovery.Discovery: that type is a
// single process-wide static registry driven by one background thread;
// here it is a value bound to the client Endpoint that owns its pings,
// since a goraknet process may run more than one Endpoint at a time.
type Discoverer struct {
	ep       *Endpoint
	listener DiscoveryListener

	mu      sync.Mutex
	mode    DiscoveryMode
	ports   map[uint16]bool
	servers map[string]Address
	found   map[string]DiscoveredServer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDiscoverer builds a Discoverer bound to ep, which must be a
// client-role Endpoint that is already running (ListenAndServe/Connect
// called at least once to open its socket).
func NewDiscoverer(ep *Endpoint, mode DiscoveryMode, listener DiscoveryListener) *Discoverer {
	d := &Discoverer{
		ep:       ep,
		listener: listener,
		mode:     mode,
		ports:    make(map[uint16]bool),
		servers:  make(map[string]Address),
		found:    make(map[string]DiscoveredServer),
	}
	ep.setPongHandler(d.handlePong)
	return d
}

// SetMode changes the discovery mode; switching to DiscoveryDisabled
// forgets every server found so far and fires OnServerForgotten for each.
func (d *Discoverer) SetMode(mode DiscoveryMode) {
	d.mu.Lock()
	d.mode = mode
	var forgotten []DiscoveredServer
	if mode == DiscoveryDisabled {
		for k, s := range d.found {
			forgotten = append(forgotten, s)
			delete(d.found, k)
		}
	}
	d.mu.Unlock()
	for _, s := range forgotten {
		d.callForgotten(s)
	}
}

// AddPort starts broadcasting to port on the local broadcast address
// (255.255.255.255 for IPv4), per jraknet's Discovery.addPort.
func (d *Discoverer) AddPort(port uint16) {
	d.mu.Lock()
	d.ports[port] = true
	d.mu.Unlock()
}

// RemovePort stops broadcasting to port.
func (d *Discoverer) RemovePort(port uint16) {
	d.mu.Lock()
	delete(d.ports, port)
	d.mu.Unlock()
}

// AddServer starts pinging a specific external server address directly
// rather than via local broadcast, per jraknet's Discovery.addServer.
func (d *Discoverer) AddServer(addr Address) {
	d.mu.Lock()
	d.servers[addr.String()] = addr
	d.mu.Unlock()
}

// RemoveServer stops pinging addr.
func (d *Discoverer) RemoveServer(addr Address) {
	d.mu.Lock()
	delete(d.servers, addr.String())
	d.mu.Unlock()
}

// Servers returns every server currently considered discovered.
func (d *Discoverer) Servers() []DiscoveredServer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DiscoveredServer, 0, len(d.found))
	for _, s := range d.found {
		out = append(out, s)
	}
	return out
}

// Start begins the broadcast loop in the background.
func (d *Discoverer) Start() {
	d.stopCh = make(chan struct{})
	d.wg.Add(1)
	go d.run()
}

// Stop halts the broadcast loop and detaches from its Endpoint.
func (d *Discoverer) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.ep.setPongHandler(nil)
}

func (d *Discoverer) run() {
	defer d.wg.Done()
	t := time.NewTicker(discoveryInterval)
	defer t.Stop()
	d.broadcastOnce()
	for {
		select {
		case <-t.C:
			d.broadcastOnce()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Discoverer) broadcastOnce() {
	d.mu.Lock()
	mode := d.mode
	if mode == DiscoveryDisabled {
		d.mu.Unlock()
		return
	}
	ports := make([]uint16, 0, len(d.ports))
	for p := range d.ports {
		ports = append(ports, p)
	}
	servers := make([]Address, 0, len(d.servers))
	for _, s := range d.servers {
		servers = append(servers, s)
	}
	d.mu.Unlock()

	ping := encodeUnconnectedPing(unconnectedPing{
		Timestamp:  d.ep.relativeTime(),
		OpenConns:  mode == DiscoveryOpenConnections,
		ClientGUID: d.ep.guid,
	})

	broadcastIP := broadcastAddressV4()
	for _, port := range ports {
		d.ep.writeRaw(Address{IP: broadcastIP, Port: port}, ping)
	}
	for _, addr := range servers {
		d.ep.writeRaw(addr, ping)
	}
}

// broadcastAddressV4 returns the limited IPv4 broadcast address
// (255.255.255.255), the address jraknet's Discovery broadcasts
// UnconnectedPing to for local-network server discovery.
func broadcastAddressV4() net.IP { return net.IPv4bcast }

func (d *Discoverer) handlePong(from Address, pong unconnectedPong) {
	now := d.ep.now()
	s := DiscoveredServer{
		Addr:       from,
		GUID:       pong.ServerGUID,
		Identifier: pong.Identifier,
		LastSeen:   now,
	}

	d.mu.Lock()
	_, known := d.found[from.String()]
	d.found[from.String()] = s
	d.mu.Unlock()

	if known {
		d.callUpdated(s)
	} else {
		d.callDiscovered(s)
	}
}

func (d *Discoverer) callDiscovered(s DiscoveredServer) {
	if d.listener.OnServerDiscovered != nil {
		d.ep.dispatch(func() { d.listener.OnServerDiscovered(s) })
	}
}

func (d *Discoverer) callUpdated(s DiscoveredServer) {
	if d.listener.OnServerUpdated != nil {
		d.ep.dispatch(func() { d.listener.OnServerUpdated(s) })
	}
}

func (d *Discoverer) callForgotten(s DiscoveredServer) {
	if d.listener.OnServerForgotten != nil {
		d.ep.dispatch(func() { d.listener.OnServerForgotten(s) })
	}
}
