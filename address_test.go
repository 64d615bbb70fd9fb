package raknet

import (
	"net"
	"testing"
)

func TestAddressRoundTripV4(t *testing.T) {
	a := Address{IP: net.ParseIP("203.0.113.7").To4(), Port: 19132}
	w := newWriter(0)
	writeAddress(w, a)

	r := newReader(w.Bytes())
	got := readAddress(r)

	if !got.IP.Equal(a.IP) {
		t.Fatalf("IP = %v, want %v", got.IP, a.IP)
	}
	if got.Port != a.Port {
		t.Fatalf("Port = %d, want %d", got.Port, a.Port)
	}
}

func TestAddressRoundTripV6(t *testing.T) {
	a := Address{IP: net.ParseIP("2001:db8::1"), Port: 12345}
	w := newWriter(0)
	writeAddress(w, a)

	r := newReader(w.Bytes())
	got := readAddress(r)

	if !got.IP.Equal(a.IP) {
		t.Fatalf("IP = %v, want %v", got.IP, a.IP)
	}
	if got.Port != a.Port {
		t.Fatalf("Port = %d, want %d", got.Port, a.Port)
	}
}

func TestAddressBitInversion(t *testing.T) {
	a := Address{IP: net.ParseIP("1.2.3.4").To4(), Port: 1}
	w := newWriter(0)
	writeAddress(w, a)

	raw := w.Bytes()
	// family tag, then four inverted octets
	if raw[0] != 4 {
		t.Fatalf("family tag = %d, want 4", raw[0])
	}
	for i, want := range []byte{1, 2, 3, 4} {
		if raw[1+i] != ^want {
			t.Fatalf("octet %d = %#x, want %#x", i, raw[1+i], ^want)
		}
	}
}
