package raknet

import (
	"testing"
	"time"
)

func newTestPeer() *Peer {
	ep := &Endpoint{}
	return newPeer(ep, Address{IP: []byte{127, 0, 0, 1}, Port: 1}, RoleServer, 1, DefaultMTU)
}

func TestSendQueuesAndFlushesReliable(t *testing.T) {
	p := newTestPeer()

	if _, err := p.Send(Reliable, 0, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	p.mu.Lock()
	if len(p.outQueue) != 1 {
		t.Fatalf("outQueue has %d messages, want 1", len(p.outQueue))
	}
	p.flushOutbound()
	if len(p.outQueue) != 0 {
		t.Fatalf("outQueue not drained after flush: %d left", len(p.outQueue))
	}
	if len(p.outUnacked) != 1 {
		t.Fatalf("outUnacked has %d entries, want 1", len(p.outUnacked))
	}
	p.mu.Unlock()
}

func TestSendRejectsInvalidChannel(t *testing.T) {
	p := newTestPeer()
	if _, err := p.Send(Reliable, MaxChannels, []byte("x")); err == nil {
		t.Fatal("expected an error sending on an out-of-range channel")
	}
}

func TestSendRejectsInvalidReliability(t *testing.T) {
	p := newTestPeer()
	if _, err := p.Send(numReliabilities, 0, []byte("x")); err == nil {
		t.Fatal("expected an error sending with an unknown reliability")
	}
}

func TestSendReturnsReceiptForAckReceiptReliabilities(t *testing.T) {
	p := newTestPeer()
	receipt, err := p.Send(ReliableWithAckReceipt, 0, []byte("x"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if receipt == nil {
		t.Fatal("expected a non-nil receipt for RELIABLE_WITH_ACK_RECEIPT")
	}

	plain, err := p.Send(Reliable, 0, []byte("y"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if plain != nil {
		t.Fatal("expected a nil receipt for plain RELIABLE")
	}
}

func TestSendFragmentsOversizedPayload(t *testing.T) {
	p := newTestPeer()
	p.mtu = MinMTU

	payload := make([]byte, MinMTU*3)
	for i := range payload {
		payload[i] = byte(i)
	}

	if _, err := p.Send(ReliableOrdered, 0, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	p.mu.Lock()
	n := len(p.outQueue)
	p.mu.Unlock()
	if n < 2 {
		t.Fatalf("expected the oversized payload to be split into multiple messages, got %d", n)
	}
}

func TestRetransmitDueResendsAfterInterval(t *testing.T) {
	p := newTestPeer()
	p.Send(Reliable, 0, []byte("hi"))

	p.mu.Lock()
	p.flushOutbound()
	var idx uint32
	for i := range p.outUnacked {
		idx = i
	}
	firstSent := p.outUnacked[idx].lastSent
	p.mu.Unlock()

	later := firstSent.Add(2 * RetransmitInterval)
	p.mu.Lock()
	p.retransmitDue(later)
	newLastSent := p.outUnacked[idx].lastSent
	p.mu.Unlock()

	if !newLastSent.After(firstSent) {
		t.Fatalf("lastSent was not advanced by retransmitDue: before=%v after=%v", firstSent, newLastSent)
	}
}

func TestProcessAckReleasesUnacked(t *testing.T) {
	p := newTestPeer()
	p.Send(Reliable, 0, []byte("hi"))

	p.mu.Lock()
	p.flushOutbound()
	seq := p.outDatagramSeq - 1 // flushOutbound already advanced past the seq it used
	if len(p.outUnacked) != 1 {
		t.Fatalf("outUnacked has %d entries, want 1", len(p.outUnacked))
	}
	p.processAckLocked([]ackRange{{seq, seq}}, EventSink{})
	if len(p.outUnacked) != 0 {
		t.Fatalf("outUnacked has %d entries after ACK, want 0", len(p.outUnacked))
	}
	p.mu.Unlock()
}

func TestProcessNackSchedulesResend(t *testing.T) {
	p := newTestPeer()
	p.Send(Reliable, 0, []byte("hi"))

	p.mu.Lock()
	p.flushOutbound()
	seq := p.outDatagramSeq - 1
	p.processNackLocked([]ackRange{{seq, seq}}, time.Now(), EventSink{})
	// After a NACK, the reliable index has been re-sent into a fresh
	// datagram, so its bookkeeping must still show it unacknowledged.
	if len(p.outUnacked) != 1 {
		t.Fatalf("outUnacked has %d entries after NACK, want 1", len(p.outUnacked))
	}
	p.mu.Unlock()
}

func TestTouchRecvFloodDetection(t *testing.T) {
	p := newTestPeer()
	now := time.Now()
	for i := 0; i < 5; i++ {
		if flood := p.touchRecv(now, 5); flood {
			t.Fatalf("flood triggered early at packet %d", i+1)
		}
	}
	if flood := p.touchRecv(now, 5); !flood {
		t.Fatal("expected flood detection to trigger past the per-second cap")
	}
}
