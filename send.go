package raknet

import "time"

// envelopeOverhead is the connected-datagram envelope's fixed cost: the
// flag byte plus the 24-bit sequence number (spec.md §4.2).
const envelopeOverhead = 1 + 3

// Send submits a user message for delivery to this Peer, fragmenting it
// if its wire size would exceed the negotiated MTU (spec.md §4.4
// outbound path, steps 1-2). It returns a non-nil ReceiptHandle iff
// reliability is one of the *_WITH_ACK_RECEIPT variants.
func (p *Peer) Send(reliability Reliability, ch Channel, payload []byte) (*ReceiptHandle, error) {
	if ch >= MaxChannels {
		return nil, InvalidChannelError(ch)
	}
	if !reliability.valid() {
		return nil, InvalidReliabilityError{reliability, "unknown reliability id"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrNotConnected
	}

	var orderedIdx, seqIdx uint32
	if reliability.IsOrdered() {
		orderedIdx = p.outChans[ch].outOrdered
		p.outChans[ch].outOrdered++
	}
	if reliability.IsSequenced() {
		seqIdx = p.outChans[ch].outSeq
		p.outChans[ch].outSeq++
	}

	budget := p.mtu - envelopeOverhead
	whole := encapsulatedHeaderSize(reliability, false) + len(payload)

	var receipt *ReceiptHandle

	if whole <= budget {
		m := encapsulated{
			Reliability:  reliability,
			ReliableIndex: 0,
			SeqIndex:     seqIdx,
			OrderedIndex: orderedIdx,
			OrderChannel: ch,
			Payload:      payload,
		}
		if reliability.IsReliable() {
			m.ReliableIndex = p.outReliableIdx
			p.outReliableIdx++
		}
		if reliability.WithAckReceipt() {
			receipt = p.allocReceiptLocked(&m)
		}
		p.queueOutbound(m, ch, reliability)
		return receipt, nil
	}

	fragBudget := budget - encapsulatedHeaderSize(reliability, true)
	if fragBudget <= 0 {
		return nil, MtuExceededError{MTU: p.mtu, Limit: encapsulatedHeaderSize(reliability, true) + envelopeOverhead + 1}
	}

	chunks := splitPayload(payload, fragBudget)
	if len(chunks) > 0xffffffff {
		return nil, ErrPktTooBig
	}

	splitID := p.outSplitID
	p.outSplitID++

	msgs := make([]encapsulated, len(chunks))
	for i, chunk := range chunks {
		m := encapsulated{
			Reliability:  reliability,
			Split:        true,
			SeqIndex:     seqIdx,
			OrderedIndex: orderedIdx,
			OrderChannel: ch,
			SplitHeader: splitHeader{
				Count: uint32(len(chunks)),
				ID:    splitID,
				Index: uint32(i),
			},
			Payload: chunk,
		}
		if reliability.IsReliable() {
			m.ReliableIndex = p.outReliableIdx
			p.outReliableIdx++
		}
		msgs[i] = m
	}

	if reliability.WithAckReceipt() {
		// A split message's ack receipt is tied to its last fragment
		// only; acknowledgement of the earlier fragments is not
		// tracked for the receipt.
		receipt = p.allocReceiptLocked(&msgs[len(msgs)-1])
	}

	for _, m := range msgs {
		p.queueOutbound(m, ch, reliability)
	}

	return receipt, nil
}

// allocReceiptLocked allocates a receipt id for a *_WITH_ACK_RECEIPT
// message. For reliable variants it keys the id by reliable index,
// resolved only when that index is ACKed (a NACK resends it and leaves
// the receipt pending). For unreliable variants it stamps the id onto the
// message itself so flushOutbound can key it by the datagram the message
// ends up packed into. Must be called with p.mu held.
func (p *Peer) allocReceiptLocked(m *encapsulated) *ReceiptHandle {
	id := p.nextReceiptID
	p.nextReceiptID++
	if m.Reliability.IsReliable() {
		p.reliableRecpt[m.ReliableIndex] = id
	} else {
		m.receiptID = id
	}
	return &ReceiptHandle{Peer: p, ID: id}
}

func splitPayload(data []byte, chunkSize int) [][]byte {
	n := (len(data) + chunkSize - 1) / chunkSize
	if n == 0 {
		n = 1
	}
	chunks := make([][]byte, 0, n)
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	if len(chunks) == 0 {
		chunks = append(chunks, nil)
	}
	return chunks
}

// queueOutbound appends m to the pending-pack queue. Must be called with
// p.mu held.
func (p *Peer) queueOutbound(m encapsulated, ch Channel, reliability Reliability) {
	p.outQueue = append(p.outQueue, m)
	p.lastOutbound = p.ep.now()
}

// flushOutbound packs as many pending encapsulated messages as fit into
// datagrams and sends them, stamping each with the next outbound datagram
// sequence number (spec.md §4.4 outbound step 3). Called from the tick
// loop; must be called with p.mu held.
func (p *Peer) flushOutbound() {
	for len(p.outQueue) > 0 {
		budget := p.mtu - envelopeOverhead
		var blobs [][]byte
		var reliableIdxs []uint32
		var taken int

		for taken < len(p.outQueue) {
			m := p.outQueue[taken]
			w := newWriter(16 + len(m.Payload))
			encodeEncapsulated(w, m)
			blob := w.Bytes()
			if len(blob) > budget {
				if taken == 0 {
					// Shouldn't happen: Send() already bounded fragment
					// size to fit. Send it alone in its own oversized
					// datagram rather than silently dropping it.
					blobs = append(blobs, blob)
					if m.Reliability.IsReliable() {
						reliableIdxs = append(reliableIdxs, m.ReliableIndex)
					}
					taken = 1
				}
				break
			}
			budget -= len(blob)
			blobs = append(blobs, blob)
			if m.Reliability.IsReliable() {
				reliableIdxs = append(reliableIdxs, m.ReliableIndex)
			}
			taken++
		}

		seq := p.outDatagramSeq
		p.outDatagramSeq = p.outDatagramSeq.next()

		for i, blob := range blobs {
			m := p.outQueue[i]
			if m.Reliability.IsReliable() {
				now := p.ep.now()
				p.outUnacked[m.ReliableIndex] = &unackedMessage{
					encoded:   blob,
					chNo:      m.OrderChannel,
					firstSent: now,
					lastSent:  now,
				}
			}
			if m.Reliability == UnreliableWithAckReceipt {
				p.unrelRecpt[seq] = append(p.unrelRecpt[seq], m.receiptID)
			}
		}
		if len(reliableIdxs) > 0 {
			p.datagramRel[seq] = reliableIdxs
		}

		p.ep.writeDatagram(p.addr, encodeDataDatagram(seq, blobs))
		p.outQueue = p.outQueue[taken:]
	}
}

// retransmitDue re-packs any unacknowledged reliable message older than
// RetransmitInterval into a fresh datagram (spec.md §4.4 outbound step 4).
// Must be called with p.mu held.
func (p *Peer) retransmitDue(now time.Time) {
	var due []uint32
	for idx, u := range p.outUnacked {
		if now.Sub(u.lastSent) >= RetransmitInterval {
			due = append(due, idx)
		}
	}
	if len(due) == 0 {
		return
	}
	p.resend(due, now)
}

// resend immediately re-packs the given reliable indices into fresh
// datagrams, used both by the timeout path and by NACK-triggered
// retransmission. Must be called with p.mu held.
func (p *Peer) resend(idxs []uint32, now time.Time) {
	budget := p.mtu - envelopeOverhead
	var blobs [][]byte
	var carried []uint32

	flush := func() {
		if len(blobs) == 0 {
			return
		}
		seq := p.outDatagramSeq
		p.outDatagramSeq = p.outDatagramSeq.next()
		p.datagramRel[seq] = append([]uint32(nil), carried...)
		p.ep.writeDatagram(p.addr, encodeDataDatagram(seq, blobs))
		blobs = nil
		carried = nil
		budget = p.mtu - envelopeOverhead
	}

	for _, idx := range idxs {
		u, ok := p.outUnacked[idx]
		if !ok {
			continue // already acked since being marked due
		}
		if len(u.encoded) > budget {
			flush()
		}
		u.lastSent = now
		blobs = append(blobs, u.encoded)
		carried = append(carried, idx)
		budget -= len(u.encoded)
	}
	flush()
}
