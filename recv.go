package raknet

import "time"

// handleConnectedDatagram processes one inbound connected datagram for
// this Peer: dedup, gap tracking for NACK, ACK/NACK record processing,
// and per-message decode/deliver (spec.md §4.4 inbound path). Every payload
// now ready is passed, in wire order, to the handshake handler or, if it is
// not a control message, to sink.OnMessage.
func (p *Peer) handleConnectedDatagram(data []byte, now time.Time, sink EventSink) {
	dg, body, err := decodeConnectedDatagram(data)
	if err != nil {
		sink.safeOnPeerError(p, PktError{Kind: "datagram", Data: data, Err: err})
		return
	}

	p.mu.Lock()

	if dg.IsACK {
		p.processAckLocked(dg.Records, sink)
		p.mu.Unlock()
		return
	}
	if dg.IsNACK {
		p.processNackLocked(dg.Records, now, sink)
		p.mu.Unlock()
		return
	}

	if p.recvSeqSeen[dg.Seq] {
		p.mu.Unlock()
		return // duplicate datagram, silently dropped
	}
	p.recvSeqSeen[dg.Seq] = true

	if p.haveSeq && seqLess(p.highestSeq, dg.Seq) {
		for gap := p.highestSeq.next(); gap != dg.Seq; gap = gap.next() {
			p.pendingNACK[gap] = true
		}
		p.highestSeq = dg.Seq
	} else if !p.haveSeq {
		p.highestSeq = dg.Seq
		p.haveSeq = true
	}
	p.pendingACK[dg.Seq] = true
	delete(p.pendingNACK, dg.Seq)

	var toDeliver []encapsulated
	for body.Len() > 0 {
		m, err := decodeEncapsulated(body)
		if err != nil {
			sink.safeOnPeerError(p, PktError{Kind: "encapsulated", Data: data, Err: err})
			break
		}
		toDeliver = append(toDeliver, p.admitMessageLocked(m)...)
	}

	p.mu.Unlock()

	for _, m := range toDeliver {
		if p.ep.handleHandshakeMessage(p, m.Payload) {
			continue // protocol-internal, never surfaced to the application
		}
		sink.safeOnMessage(p, m.OrderChannel, m.Payload)
	}
}

// admitMessageLocked applies dedup/sequencing/ordering/reassembly rules
// to one decoded encapsulated message and returns, in order, every
// message now ready for delivery (zero, one, or many if an ordered
// buffer drains). Must be called with p.mu held.
func (p *Peer) admitMessageLocked(m encapsulated) []encapsulated {
	if m.Reliability.IsReliable() {
		if p.recvReliable[m.ReliableIndex] {
			return nil // duplicate, already delivered
		}
		p.recvReliable[m.ReliableIndex] = true
	}

	if m.Split {
		reassembled, done, err := p.inSplits[m.OrderChannel].add(m)
		if err != nil {
			return nil
		}
		if !done {
			return nil
		}
		m = reassembled
	}

	ch := p.inChans[m.OrderChannel]

	if m.Reliability.IsSequenced() {
		if !ch.acceptSequenced(m.SeqIndex) {
			return nil
		}
		return []encapsulated{m}
	}

	if m.Reliability.IsOrdered() {
		return ch.admitOrdered(m.OrderedIndex, m)
	}

	return []encapsulated{m}
}
