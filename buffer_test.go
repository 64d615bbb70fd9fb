package raknet

import (
	"io"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := newWriter(0)
	w.writeByte(0xAB)
	w.writeUint16BE(0x1234)
	w.writeUint16LE(0x1234)
	w.writeUint32BE(0xdeadbeef)
	w.writeUint32LE(0xdeadbeef)
	w.writeUint64BE(0x0102030405060708)
	w.writeTriadLE(0xabcdef)
	w.writeStringBE("hello")
	w.writeStringLE("world")

	r := newReader(w.Bytes())
	if got := r.readByte(); got != 0xAB {
		t.Fatalf("readByte = %#x, want 0xAB", got)
	}
	if got := r.readUint16BE(); got != 0x1234 {
		t.Fatalf("readUint16BE = %#x, want 0x1234", got)
	}
	if got := r.readUint16LE(); got != 0x1234 {
		t.Fatalf("readUint16LE = %#x, want 0x1234", got)
	}
	if got := r.readUint32BE(); got != 0xdeadbeef {
		t.Fatalf("readUint32BE = %#x, want 0xdeadbeef", got)
	}
	if got := r.readUint32LE(); got != 0xdeadbeef {
		t.Fatalf("readUint32LE = %#x, want 0xdeadbeef", got)
	}
	if got := r.readUint64BE(); got != 0x0102030405060708 {
		t.Fatalf("readUint64BE = %#x, want 0x0102030405060708", got)
	}
	if got := r.readTriadLE(); got != 0xabcdef {
		t.Fatalf("readTriadLE = %#x, want 0xabcdef", got)
	}
	if got := r.readStringBE(); got != "hello" {
		t.Fatalf("readStringBE = %q, want hello", got)
	}
	if got := r.readStringLE(); got != "world" {
		t.Fatalf("readStringLE = %q, want world", got)
	}
	if r.Len() != 0 {
		t.Fatalf("reader has %d bytes left, want 0", r.Len())
	}
}

func TestPcallDecodeShortBuffer(t *testing.T) {
	r := newReader([]byte{0x01})
	err := pcallDecode("field", func() {
		r.readUint32BE()
	})
	if err == nil {
		t.Fatal("expected an error from a short buffer")
	}
	var mfe MalformedFieldError
	if !asMalformed(err, &mfe) {
		t.Fatalf("expected MalformedFieldError, got %T: %v", err, err)
	}
	if mfe.Field != "field" {
		t.Fatalf("Field = %q, want %q", mfe.Field, "field")
	}
	if mfe.Err != io.ErrUnexpectedEOF {
		t.Fatalf("Err = %v, want io.ErrUnexpectedEOF", mfe.Err)
	}
}

func TestPcallDecodeChk(t *testing.T) {
	sentinel := newSimpleError("bad value")
	err := pcallDecode("field", func() {
		chk(sentinel)
	})
	var mfe MalformedFieldError
	if !asMalformed(err, &mfe) {
		t.Fatalf("expected MalformedFieldError, got %T: %v", err, err)
	}
	if mfe.Err != sentinel {
		t.Fatalf("Err = %v, want %v", mfe.Err, sentinel)
	}
}

func asMalformed(err error, out *MalformedFieldError) bool {
	mfe, ok := err.(MalformedFieldError)
	if ok {
		*out = mfe
	}
	return ok
}
