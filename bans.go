package raknet

import "time"

// Ban adds addr's IP to the ban list; future handshake attempts from it
// are refused with CONNECTION_BANNED (spec.md §6 ban(ip)).
func (ep *Endpoint) Ban(addr Address) error {
	ip := addr.IP.String()
	ep.mu.Lock()
	ep.banned[ip] = true
	ep.mu.Unlock()
	if ep.banStore != nil {
		return ep.banStore.add(ip, "")
	}
	return nil
}

// Unban removes addr's IP from the ban list.
func (ep *Endpoint) Unban(addr Address) error {
	ip := addr.IP.String()
	ep.mu.Lock()
	delete(ep.banned, ip)
	ep.mu.Unlock()
	if ep.banStore != nil {
		return ep.banStore.remove(ip)
	}
	return nil
}

// Block adds addr's IP to the time-limited block list (spec.md §6
// block(ip, duration); used internally for flood eviction).
func (ep *Endpoint) Block(addr Address, duration time.Duration) {
	ep.mu.Lock()
	ep.blocked[addr.IP.String()] = ep.now().Add(duration)
	ep.mu.Unlock()
}

// Unblock removes addr's IP from the block list before its expiry.
func (ep *Endpoint) Unblock(addr Address) {
	ep.mu.Lock()
	delete(ep.blocked, addr.IP.String())
	ep.mu.Unlock()
}

func (ep *Endpoint) isBanned(addr Address) bool {
	ip := addr.IP.String()
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.banned[ip]
}

func (ep *Endpoint) isBlocked(addr Address) bool {
	ip := addr.IP.String()
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	expiry, ok := ep.blocked[ip]
	if !ok {
		return false
	}
	return ep.now().Before(expiry)
}

// pruneBlocks drops expired block-list entries; called once per tick.
func (ep *Endpoint) pruneBlocks(now time.Time) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for ip, expiry := range ep.blocked {
		if !now.Before(expiry) {
			delete(ep.blocked, ip)
		}
	}
}

// wrapSink builds the Endpoint's internal EventSink, recovering a
// panicking handler into OnHandlerError instead of crashing the endpoint
// (spec.md §7). It runs each handler on the calling goroutine and does no
// queueing itself: lifecycle events and write errors are queued by their
// callers through ep.dispatch, while OnMessage, OnAcknowledge,
// OnNotAcknowledge and OnPeerError run on the read loop's goroutine.
func (ep *Endpoint) wrapSink(real EventSink) EventSink {
	guard := func(addr Address, f func()) {
		defer func() {
			if r := recover(); r != nil {
				if real.OnHandlerError != nil {
					func() {
						defer func() { recover() }()
						real.OnHandlerError(addr, handlerPanic{r})
					}()
				}
			}
		}()
		f()
	}

	return EventSink{
		OnConnect: func(p *Peer) {
			if real.OnConnect != nil {
				guard(p.Addr(), func() { real.OnConnect(p) })
			}
		},
		OnLogin: func(p *Peer) {
			if real.OnLogin != nil {
				guard(p.Addr(), func() { real.OnLogin(p) })
			}
		},
		OnDisconnect: func(p *Peer, reason DisconnectReason) {
			if real.OnDisconnect != nil {
				guard(p.Addr(), func() { real.OnDisconnect(p, reason) })
			}
		},
		OnMessage: func(p *Peer, ch Channel, payload []byte) {
			if real.OnMessage != nil {
				guard(p.Addr(), func() { real.OnMessage(p, ch, payload) })
			}
		},
		OnAcknowledge: func(r ReceiptHandle) {
			if real.OnAcknowledge != nil {
				guard(r.Peer.Addr(), func() { real.OnAcknowledge(r) })
			}
		},
		OnNotAcknowledge: func(r ReceiptHandle) {
			if real.OnNotAcknowledge != nil {
				guard(r.Peer.Addr(), func() { real.OnNotAcknowledge(r) })
			}
		},
		OnHandlerError: real.OnHandlerError,
		OnPeerError: func(p *Peer, cause error) {
			if real.OnPeerError != nil {
				guard(p.Addr(), func() { real.OnPeerError(p, cause) })
			}
		},
		HandlePing: real.HandlePing,
	}
}

type handlerPanic struct{ v interface{} }

func (h handlerPanic) Error() string {
	if err, ok := h.v.(error); ok {
		return "handler panic: " + err.Error()
	}
	return "handler panic"
}
