package raknet

import (
	"reflect"
	"testing"
)

func TestSeqLessWraparound(t *testing.T) {
	if !seqLess(5, 6) {
		t.Error("5 should be less than 6")
	}
	if seqLess(6, 5) {
		t.Error("6 should not be less than 5")
	}
	top := seqNum(seqNumMask)
	if !seqLess(top, 0) {
		t.Error("sequence ring should wrap: mask should be less than 0")
	}
	if seqLess(0, top) {
		t.Error("0 should not be less than mask across the wrap")
	}
}

func TestSeqNumNext(t *testing.T) {
	if got := seqNum(seqNumMask).next(); got != 0 {
		t.Errorf("next() at the top of the ring = %d, want 0", got)
	}
}

func TestCondenseExpandRoundTrip(t *testing.T) {
	ids := []seqNum{5, 1, 2, 3, 10, 7, 8, 3}
	ranges := condenseIDs(ids)

	got := expandRecords(ranges)
	want := []seqNum{1, 2, 3, 5, 7, 8, 10}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandRecords(condenseIDs(%v)) = %v, want %v", ids, got, want)
	}
}

func TestCondenseIDsEmpty(t *testing.T) {
	if got := condenseIDs(nil); got != nil {
		t.Fatalf("condenseIDs(nil) = %v, want nil", got)
	}
}

func TestRecordsWireRoundTrip(t *testing.T) {
	ranges := []ackRange{{1, 1}, {5, 9}, {20, 20}}
	w := newWriter(0)
	writeRecords(w, ranges)

	got, err := readRecords(newReader(w.Bytes()))
	if err != nil {
		t.Fatalf("readRecords: %v", err)
	}
	if !reflect.DeepEqual(got, ranges) {
		t.Fatalf("readRecords = %v, want %v", got, ranges)
	}
}

func TestDataDatagramRoundTrip(t *testing.T) {
	m1 := encapsulated{Reliability: Reliable, ReliableIndex: 1, Payload: []byte("a")}
	m2 := encapsulated{Reliability: Unreliable, Payload: []byte("b")}

	w1, w2 := newWriter(0), newWriter(0)
	encodeEncapsulated(w1, m1)
	encodeEncapsulated(w2, m2)

	raw := encodeDataDatagram(42, [][]byte{w1.Bytes(), w2.Bytes()})

	dg, body, err := decodeConnectedDatagram(raw)
	if err != nil {
		t.Fatalf("decodeConnectedDatagram: %v", err)
	}
	if dg.IsACK || dg.IsNACK {
		t.Fatal("a data datagram must not be flagged ACK or NACK")
	}
	if dg.Seq != 42 {
		t.Fatalf("Seq = %d, want 42", dg.Seq)
	}

	got1, err := decodeEncapsulated(body)
	if err != nil {
		t.Fatalf("decode first message: %v", err)
	}
	if string(got1.Payload) != "a" {
		t.Fatalf("first payload = %q, want a", got1.Payload)
	}
	got2, err := decodeEncapsulated(body)
	if err != nil {
		t.Fatalf("decode second message: %v", err)
	}
	if string(got2.Payload) != "b" {
		t.Fatalf("second payload = %q, want b", got2.Payload)
	}
	if body.Len() != 0 {
		t.Fatalf("body has %d bytes left, want 0", body.Len())
	}
}

func TestAckDatagramRoundTrip(t *testing.T) {
	raw := encodeAckDatagram(false, []seqNum{1, 2, 3, 10})
	dg, _, err := decodeConnectedDatagram(raw)
	if err != nil {
		t.Fatalf("decodeConnectedDatagram: %v", err)
	}
	if !dg.IsACK || dg.IsNACK {
		t.Fatal("expected an ACK datagram")
	}
	got := expandRecords(dg.Records)
	want := []seqNum{1, 2, 3, 10}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandRecords(dg.Records) = %v, want %v", got, want)
	}
}

func TestNackDatagramRoundTrip(t *testing.T) {
	raw := encodeAckDatagram(true, []seqNum{4})
	dg, _, err := decodeConnectedDatagram(raw)
	if err != nil {
		t.Fatalf("decodeConnectedDatagram: %v", err)
	}
	if !dg.IsNACK || dg.IsACK {
		t.Fatal("expected a NACK datagram")
	}
}

func TestIsConnectedDatagram(t *testing.T) {
	if isConnectedDatagram(0x05) {
		t.Error("an offline message id must not classify as a connected datagram")
	}
	if !isConnectedDatagram(flagValid) {
		t.Error("a flagValid-tagged byte must classify as a connected datagram")
	}
}
