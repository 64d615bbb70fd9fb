package raknet

import "testing"

func TestAcceptSequencedDropsStale(t *testing.T) {
	c := newChannelState()
	if !c.acceptSequenced(5) {
		t.Fatal("first sequenced message should be accepted")
	}
	if !c.acceptSequenced(6) {
		t.Fatal("a newer sequenced message should be accepted")
	}
	if c.acceptSequenced(6) {
		t.Fatal("a repeat sequence id must be dropped")
	}
	if c.acceptSequenced(3) {
		t.Fatal("an older sequence id must be dropped")
	}
}

func TestAdmitOrderedBuffersOutOfOrder(t *testing.T) {
	c := newChannelState()

	m0 := encapsulated{Payload: []byte("0")}
	m1 := encapsulated{Payload: []byte("1")}
	m2 := encapsulated{Payload: []byte("2")}

	if out := c.admitOrdered(1, m1); len(out) != 0 {
		t.Fatalf("admitting index 1 before 0 should deliver nothing, got %v", out)
	}
	if out := c.admitOrdered(2, m2); len(out) != 0 {
		t.Fatalf("admitting index 2 before 0 should deliver nothing, got %v", out)
	}

	out := c.admitOrdered(0, m0)
	if len(out) != 3 {
		t.Fatalf("admitting index 0 should drain the whole buffer, got %d messages", len(out))
	}
	for i, want := range []string{"0", "1", "2"} {
		if string(out[i].Payload) != want {
			t.Errorf("out[%d] = %q, want %q", i, out[i].Payload, want)
		}
	}
}

func TestAdmitOrderedDropsAlreadyDelivered(t *testing.T) {
	c := newChannelState()
	c.admitOrdered(0, encapsulated{Payload: []byte("0")})

	if out := c.admitOrdered(0, encapsulated{Payload: []byte("replay")}); out != nil {
		t.Fatalf("re-admitting a delivered index must not redeliver, got %v", out)
	}
}

func TestInboundSplitsReassembleOutOfOrder(t *testing.T) {
	s := newInboundSplits()

	frag := func(idx uint32, payload string) encapsulated {
		return encapsulated{
			Reliability: ReliableOrdered,
			Split:       true,
			SplitHeader: splitHeader{Count: 3, ID: 1, Index: idx},
			Payload:     []byte(payload),
		}
	}

	if _, done, err := s.add(frag(2, "ld")); err != nil || done {
		t.Fatalf("partial fragment should not complete: done=%v err=%v", done, err)
	}
	if _, done, err := s.add(frag(0, "Hel")); err != nil || done {
		t.Fatalf("partial fragment should not complete: done=%v err=%v", done, err)
	}
	out, done, err := s.add(frag(1, "lo wor"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !done {
		t.Fatal("third distinct fragment should complete the message")
	}
	if string(out.Payload) != "Hello world" {
		t.Fatalf("reassembled payload = %q, want %q", out.Payload, "Hello world")
	}
	if out.Split {
		t.Fatal("reassembled message must have Split cleared")
	}
}

func TestInboundSplitsRejectsInsaneCount(t *testing.T) {
	s := newInboundSplits()
	m := encapsulated{SplitHeader: splitHeader{Count: 0, ID: 1}}
	if _, _, err := s.add(m); err == nil {
		t.Fatal("a split count of zero must be rejected")
	}
}

func TestInboundSplitsRejectsIndexOutOfBounds(t *testing.T) {
	s := newInboundSplits()
	m := encapsulated{SplitHeader: splitHeader{Count: 2, ID: 1, Index: 5}}
	if _, _, err := s.add(m); err == nil {
		t.Fatal("a split index past the fragment count must be rejected")
	}
}

func TestInboundSplitsDuplicateFragmentIgnored(t *testing.T) {
	s := newInboundSplits()
	frag := encapsulated{SplitHeader: splitHeader{Count: 2, ID: 1, Index: 0}, Payload: []byte("a")}

	if _, done, err := s.add(frag); err != nil || done {
		t.Fatalf("first fragment should not complete: done=%v err=%v", done, err)
	}
	// Re-delivering the same fragment index must not count twice toward completion.
	if _, done, err := s.add(frag); err != nil || done {
		t.Fatalf("duplicate fragment must not complete the message: done=%v err=%v", done, err)
	}
}
