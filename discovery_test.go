package raknet

import "testing"

// A bare &Endpoint{} has a nil events channel, so ep.dispatch's select
// always falls through to its default branch and runs the callback
// inline — these tests rely on that to observe listener calls
// synchronously, the same trick peer_test.go uses for newTestPeer.

func TestDiscovererTracksServerPong(t *testing.T) {
	ep := &Endpoint{}

	discovered := make(chan DiscoveredServer, 1)
	updated := make(chan DiscoveredServer, 1)
	d := NewDiscoverer(ep, DiscoveryAllConnections, DiscoveryListener{
		OnServerDiscovered: func(s DiscoveredServer) { discovered <- s },
		OnServerUpdated:    func(s DiscoveredServer) { updated <- s },
	})

	from := Address{IP: []byte{127, 0, 0, 1}, Port: 4000}
	pong := unconnectedPong{ServerGUID: 7, Identifier: []byte("raknet;test;")}

	d.handlePong(from, pong)
	select {
	case s := <-discovered:
		if s.GUID != 7 || string(s.Identifier) != "raknet;test;" {
			t.Fatalf("unexpected discovered server: %+v", s)
		}
	default:
		t.Fatal("OnServerDiscovered was never called")
	}

	d.handlePong(from, pong)
	select {
	case <-updated:
	default:
		t.Fatal("a repeat pong from the same server should fire OnServerUpdated")
	}

	if got := len(d.Servers()); got != 1 {
		t.Fatalf("Servers() has %d entries, want 1", got)
	}
}

func TestDiscovererForgetsOnDisable(t *testing.T) {
	ep := &Endpoint{}
	forgotten := make(chan DiscoveredServer, 1)
	d := NewDiscoverer(ep, DiscoveryAllConnections, DiscoveryListener{
		OnServerForgotten: func(s DiscoveredServer) { forgotten <- s },
	})

	from := Address{IP: []byte{127, 0, 0, 1}, Port: 4001}
	d.handlePong(from, unconnectedPong{ServerGUID: 1})

	d.SetMode(DiscoveryDisabled)

	select {
	case <-forgotten:
	default:
		t.Fatal("disabling discovery should forget every known server")
	}
	if got := len(d.Servers()); got != 0 {
		t.Fatalf("Servers() has %d entries after disable, want 0", got)
	}
}
