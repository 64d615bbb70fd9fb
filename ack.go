package raknet

import "time"

// flushAckNack emits pending ACK and NACK datagrams and clears the
// corresponding sets (spec.md §4.4 "ACK/NACK emission"). Must be called
// with p.mu held.
func (p *Peer) flushAckNack() {
	if len(p.pendingACK) > 0 {
		ids := make([]seqNum, 0, len(p.pendingACK))
		for id := range p.pendingACK {
			ids = append(ids, id)
		}
		p.ep.writeDatagram(p.addr, encodeAckDatagram(false, ids))
		p.pendingACK = make(map[seqNum]bool)
	}
	if len(p.pendingNACK) > 0 {
		ids := make([]seqNum, 0, len(p.pendingNACK))
		for id := range p.pendingNACK {
			ids = append(ids, id)
		}
		p.ep.writeDatagram(p.addr, encodeAckDatagram(true, ids))
		p.pendingNACK = make(map[seqNum]bool)
	}
}

// processAckLocked handles an inbound ACK: every reliable index carried
// by an ACKed datagram sequence is released from the unacknowledged set,
// and any *_WITH_ACK_RECEIPT registered against it fires OnAcknowledge.
// Must be called with p.mu held.
func (p *Peer) processAckLocked(ranges []ackRange, sink EventSink) {
	for _, seq := range expandRecords(ranges) {
		idxs, ok := p.datagramRel[seq]
		if ok {
			delete(p.datagramRel, seq)
			for _, idx := range idxs {
				delete(p.outUnacked, idx)
				if id, ok := p.reliableRecpt[idx]; ok {
					delete(p.reliableRecpt, idx)
					sink.safeOnAcknowledge(ReceiptHandle{Peer: p, ID: id})
				}
			}
		}
		if ids, ok := p.unrelRecpt[seq]; ok {
			delete(p.unrelRecpt, seq)
			for _, id := range ids {
				sink.safeOnAcknowledge(ReceiptHandle{Peer: p, ID: id})
			}
		}
	}
}

// processNackLocked handles an inbound NACK: reliable messages carried by
// the named datagrams are scheduled for immediate retransmission;
// UNRELIABLE_WITH_ACK_RECEIPT messages instead fire OnNotAcknowledge and
// are not retransmitted. Must be called with p.mu held.
func (p *Peer) processNackLocked(ranges []ackRange, now time.Time, sink EventSink) {
	var toResend []uint32
	for _, seq := range expandRecords(ranges) {
		if idxs, ok := p.datagramRel[seq]; ok {
			delete(p.datagramRel, seq)
			toResend = append(toResend, idxs...)
		}
		if ids, ok := p.unrelRecpt[seq]; ok {
			delete(p.unrelRecpt, seq)
			for _, id := range ids {
				sink.safeOnNotAcknowledge(ReceiptHandle{Peer: p, ID: id})
			}
		}
	}
	if len(toResend) > 0 {
		p.resend(toResend, now)
	}
}
