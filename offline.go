package raknet

// Offline messages are single-shot handshake and discovery datagrams with
// the high bit of the first byte clear (spec.md §4.2, §4.5).

type openConnectionRequest1 struct {
	ProtocolVersion uint8
	MTU             int // derived from padding length, not stored on the wire
}

func encodeOpenConnectionRequest1(mtu int) []byte {
	w := newWriter(mtu)
	w.writeByte(byte(idOpenConnectionRequest1))
	w.writeBytes(MagicCookie[:])
	w.writeByte(ProtocolVersion)
	pad := mtu - w.Len()
	if pad > 0 {
		w.writeBytes(make([]byte, pad))
	}
	return w.Bytes()
}

func decodeOpenConnectionRequest1(data []byte) (m openConnectionRequest1, err error) {
	err = pcallDecode("open_connection_request_1", func() {
		r := newReader(data)
		chkID(r, idOpenConnectionRequest1)
		chkMagic(r)
		m.ProtocolVersion = r.readByte()
		m.MTU = len(data)
	})
	return
}

type openConnectionResponse1 struct {
	ServerGUID GUID
	MTU        uint16
}

func encodeOpenConnectionResponse1(m openConnectionResponse1) []byte {
	w := newWriter(32)
	w.writeByte(byte(idOpenConnectionResponse1))
	w.writeBytes(MagicCookie[:])
	w.writeUint64BE(uint64(m.ServerGUID))
	w.writeByte(0) // use security: false
	w.writeUint16BE(m.MTU)
	return w.Bytes()
}

func decodeOpenConnectionResponse1(data []byte) (m openConnectionResponse1, err error) {
	err = pcallDecode("open_connection_response_1", func() {
		r := newReader(data)
		chkID(r, idOpenConnectionResponse1)
		chkMagic(r)
		m.ServerGUID = GUID(r.readUint64BE())
		r.readByte() // use security
		m.MTU = r.readUint16BE()
	})
	return
}

type openConnectionRequest2 struct {
	ServerAddress Address
	ClientMTU     uint16
	ClientGUID    GUID
}

func encodeOpenConnectionRequest2(m openConnectionRequest2) []byte {
	w := newWriter(48)
	w.writeByte(byte(idOpenConnectionRequest2))
	w.writeBytes(MagicCookie[:])
	writeAddress(w, m.ServerAddress)
	w.writeUint16BE(m.ClientMTU)
	w.writeUint64BE(uint64(m.ClientGUID))
	return w.Bytes()
}

func decodeOpenConnectionRequest2(data []byte) (m openConnectionRequest2, err error) {
	err = pcallDecode("open_connection_request_2", func() {
		r := newReader(data)
		chkID(r, idOpenConnectionRequest2)
		chkMagic(r)
		m.ServerAddress = readAddress(r)
		m.ClientMTU = r.readUint16BE()
		m.ClientGUID = GUID(r.readUint64BE())
	})
	return
}

type openConnectionResponse2 struct {
	ServerGUID    GUID
	ClientAddress Address
	MTU           uint16
}

func encodeOpenConnectionResponse2(m openConnectionResponse2) []byte {
	w := newWriter(48)
	w.writeByte(byte(idOpenConnectionResponse2))
	w.writeBytes(MagicCookie[:])
	w.writeUint64BE(uint64(m.ServerGUID))
	writeAddress(w, m.ClientAddress)
	w.writeUint16BE(m.MTU)
	w.writeByte(0) // use encryption: false
	return w.Bytes()
}

func decodeOpenConnectionResponse2(data []byte) (m openConnectionResponse2, err error) {
	err = pcallDecode("open_connection_response_2", func() {
		r := newReader(data)
		chkID(r, idOpenConnectionResponse2)
		chkMagic(r)
		m.ServerGUID = GUID(r.readUint64BE())
		m.ClientAddress = readAddress(r)
		m.MTU = r.readUint16BE()
		r.readByte()
	})
	return
}

func encodeSingleByteOffline(id offlineID) []byte { return []byte{byte(id)} }

type unconnectedPing struct {
	Timestamp  uint64
	OpenConns  bool
	ClientGUID GUID
}

func encodeUnconnectedPing(m unconnectedPing) []byte {
	w := newWriter(32)
	id := idUnconnectedPing
	if m.OpenConns {
		id = idUnconnectedPingOpenConns
	}
	w.writeByte(byte(id))
	w.writeUint64BE(m.Timestamp)
	w.writeBytes(MagicCookie[:])
	w.writeUint64BE(uint64(m.ClientGUID))
	return w.Bytes()
}

func decodeUnconnectedPing(data []byte) (m unconnectedPing, err error) {
	err = pcallDecode("unconnected_ping", func() {
		r := newReader(data)
		id := offlineID(r.readByte())
		if id != idUnconnectedPing && id != idUnconnectedPingOpenConns {
			chk(errWrongOfflineID)
		}
		m.OpenConns = id == idUnconnectedPingOpenConns
		m.Timestamp = r.readUint64BE()
		chkMagic(r)
		m.ClientGUID = GUID(r.readUint64BE())
	})
	return
}

type unconnectedPong struct {
	Timestamp  uint64
	ServerGUID GUID
	Identifier []byte
}

func encodeUnconnectedPong(m unconnectedPong) []byte {
	w := newWriter(32 + len(m.Identifier))
	w.writeByte(byte(idUnconnectedPong))
	w.writeUint64BE(m.Timestamp)
	w.writeUint64BE(uint64(m.ServerGUID))
	w.writeBytes(MagicCookie[:])
	w.writeStringBE(string(m.Identifier))
	return w.Bytes()
}

func decodeUnconnectedPong(data []byte) (m unconnectedPong, err error) {
	err = pcallDecode("unconnected_pong", func() {
		r := newReader(data)
		chkID(r, idUnconnectedPong)
		m.Timestamp = r.readUint64BE()
		m.ServerGUID = GUID(r.readUint64BE())
		chkMagic(r)
		m.Identifier = []byte(r.readStringBE())
	})
	return
}

// connectionRequest and newIncomingConnection are encapsulated messages
// (sent RELIABLE inside a connected datagram), not offline messages, but
// share this file because they belong to the same handshake.
type connectionRequest struct {
	ClientGUID GUID
	Timestamp  uint64
}

func encodeConnectionRequest(m connectionRequest) []byte {
	w := newWriter(24)
	w.writeByte(byte(idConnectionRequest))
	w.writeUint64BE(uint64(m.ClientGUID))
	w.writeUint64BE(m.Timestamp)
	w.writeByte(0) // use security: false
	return w.Bytes()
}

func decodeConnectionRequest(data []byte) (m connectionRequest, err error) {
	err = pcallDecode("connection_request", func() {
		r := newReader(data)
		chkID(r, idConnectionRequest)
		m.ClientGUID = GUID(r.readUint64BE())
		m.Timestamp = r.readUint64BE()
	})
	return
}

type connectionRequestAccepted struct {
	ClientAddress Address
	RequestTime   uint64
	Time          uint64
}

func encodeConnectionRequestAccepted(m connectionRequestAccepted) []byte {
	w := newWriter(48)
	w.writeByte(byte(idConnectionRequestAccepted))
	writeAddress(w, m.ClientAddress)
	w.writeUint16BE(0) // system index
	w.writeUint64BE(m.RequestTime)
	w.writeUint64BE(m.Time)
	return w.Bytes()
}

func decodeConnectionRequestAccepted(data []byte) (m connectionRequestAccepted, err error) {
	err = pcallDecode("connection_request_accepted", func() {
		r := newReader(data)
		chkID(r, idConnectionRequestAccepted)
		m.ClientAddress = readAddress(r)
		r.readUint16BE()
		m.RequestTime = r.readUint64BE()
		m.Time = r.readUint64BE()
	})
	return
}

type newIncomingConnection struct {
	ServerAddress Address
	RequestTime   uint64
	Time          uint64
}

func encodeNewIncomingConnection(m newIncomingConnection) []byte {
	w := newWriter(32)
	w.writeByte(byte(idNewIncomingConnection))
	writeAddress(w, m.ServerAddress)
	w.writeUint64BE(m.RequestTime)
	w.writeUint64BE(m.Time)
	return w.Bytes()
}

func decodeNewIncomingConnection(data []byte) (m newIncomingConnection, err error) {
	err = pcallDecode("new_incoming_connection", func() {
		r := newReader(data)
		chkID(r, idNewIncomingConnection)
		m.ServerAddress = readAddress(r)
		m.RequestTime = r.readUint64BE()
		m.Time = r.readUint64BE()
	})
	return
}

func encodeDisconnectionNotification() []byte {
	return []byte{byte(idDisconnectionNotification)}
}

var errWrongOfflineID = newSimpleError("unexpected offline message id")

func chkID(r *reader, want offlineID) {
	got := offlineID(r.readByte())
	if got != want {
		chk(errWrongOfflineID)
	}
}

func chkMagic(r *reader) {
	got := r.eat(16)
	for i, b := range MagicCookie {
		if got[i] != b {
			chk(errBadMagicCookie)
		}
	}
}

var errBadMagicCookie = newSimpleError("bad magic cookie")

type simpleError string

func newSimpleError(s string) error { return simpleError(s) }

func (e simpleError) Error() string { return string(e) }
