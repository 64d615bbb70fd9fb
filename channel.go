package raknet

// channelState holds the per-channel outbound and inbound bookkeeping a
// Peer keeps for ordered and sequenced delivery (spec.md §3's "per-channel
// ordered index counter", "per-channel sequenced index counter", and the
// receive-side "ordered-receive buffer keyed by ordered index").
type channelState struct {
	outOrdered  uint32
	outSeq      uint32
	highestSeq  uint32
	haveSeq     bool
	nextOrdered uint32
	orderedBuf  map[uint32]encapsulated
}

func newChannelState() *channelState {
	return &channelState{orderedBuf: make(map[uint32]encapsulated)}
}

// acceptSequenced reports whether a sequenced message with index idx
// should be delivered, and advances the per-channel high-water mark if so.
// Any id <= the highest-seen id is silently dropped (spec.md §3 invariant).
func (c *channelState) acceptSequenced(idx uint32) bool {
	if c.haveSeq && idx <= c.highestSeq {
		return false
	}
	c.highestSeq = idx
	c.haveSeq = true
	return true
}

// admitOrdered buffers an ordered message and returns, in order, every
// message now deliverable because the next-expected cursor has caught up.
func (c *channelState) admitOrdered(idx uint32, m encapsulated) []encapsulated {
	if idx < c.nextOrdered {
		return nil // already delivered
	}
	c.orderedBuf[idx] = m

	var out []encapsulated
	for {
		next, ok := c.orderedBuf[c.nextOrdered]
		if !ok {
			break
		}
		out = append(out, next)
		delete(c.orderedBuf, c.nextOrdered)
		c.nextOrdered++
	}
	return out
}

// splitAssembly accumulates the fragments of one split message.
type splitAssembly struct {
	chunks [][]byte
	got    int
	first  encapsulated // header fields of the first fragment to arrive, reused for the reassembled message
}

// inboundSplits tracks partial split messages keyed by split id, per
// channel as the wire format scopes split ids to the channel the
// fragments were sent on.
type inboundSplits struct {
	byID map[uint16]*splitAssembly
}

func newInboundSplits() *inboundSplits {
	return &inboundSplits{byID: make(map[uint16]*splitAssembly)}
}

// add stores one fragment and returns the reassembled payload plus the
// canonical (non-split) encapsulated message once all fragments arrive,
// regardless of arrival order (spec.md §3 invariant).
func (s *inboundSplits) add(m encapsulated) (reassembled encapsulated, done bool, err error) {
	sh := m.SplitHeader
	a, ok := s.byID[sh.ID]
	if !ok {
		if sh.Count == 0 || sh.Count > 1<<20 {
			return encapsulated{}, false, MalformedFieldError{Field: "split_count", Err: ErrSplitCountInsane}
		}
		a = &splitAssembly{chunks: make([][]byte, sh.Count), first: m}
		s.byID[sh.ID] = a
	}
	if sh.Index >= uint32(len(a.chunks)) {
		return encapsulated{}, false, MalformedFieldError{Field: "split_index", Err: ErrSplitIndexOOB}
	}
	if a.chunks[sh.Index] == nil {
		a.chunks[sh.Index] = m.Payload
		a.got++
	}
	if a.got < len(a.chunks) {
		return encapsulated{}, false, nil
	}

	total := 0
	for _, c := range a.chunks {
		total += len(c)
	}
	payload := make([]byte, 0, total)
	for _, c := range a.chunks {
		payload = append(payload, c...)
	}

	out := a.first
	out.Split = false
	out.Payload = payload
	delete(s.byID, sh.ID)
	return out, true, nil
}
