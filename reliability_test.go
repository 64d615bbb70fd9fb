package raknet

import "testing"

func TestReliabilityPredicates(t *testing.T) {
	cases := []struct {
		r                              Reliability
		reliable, ordered, sequenced, receipt bool
	}{
		{Unreliable, false, false, false, false},
		{UnreliableSequenced, false, false, true, false},
		{Reliable, true, false, false, false},
		{ReliableOrdered, true, true, false, false},
		{ReliableSequenced, true, false, true, false},
		{UnreliableWithAckReceipt, false, false, false, true},
		{ReliableWithAckReceipt, true, false, false, true},
		{ReliableOrderedWithAckReceipt, true, true, false, true},
	}
	for _, c := range cases {
		if got := c.r.IsReliable(); got != c.reliable {
			t.Errorf("%s.IsReliable() = %v, want %v", c.r, got, c.reliable)
		}
		if got := c.r.IsOrdered(); got != c.ordered {
			t.Errorf("%s.IsOrdered() = %v, want %v", c.r, got, c.ordered)
		}
		if got := c.r.IsSequenced(); got != c.sequenced {
			t.Errorf("%s.IsSequenced() = %v, want %v", c.r, got, c.sequenced)
		}
		if got := c.r.WithAckReceipt(); got != c.receipt {
			t.Errorf("%s.WithAckReceipt() = %v, want %v", c.r, got, c.receipt)
		}
		if !c.r.valid() {
			t.Errorf("%s.valid() = false, want true", c.r)
		}
	}
	if numReliabilities.valid() {
		t.Error("numReliabilities sentinel must not be valid")
	}
}
