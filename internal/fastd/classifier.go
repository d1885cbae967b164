package fastd

// minHandshakeLen is the shortest datagram classifyHandshake accepts,
// including the leading type byte.
const minHandshakeLen = 4

// classify is installed as every bound socket's receive-path dispatcher.
// The first byte of the datagram selects handshake traffic (queued for
// userspace) from data traffic (delivered straight to the owning peer's
// tunnel interface).
func (m *Module) classify(sock *BoundSocket, remote Endpoint, payload []byte) {
	if len(payload) < 1 {
		m.metrics.DataDropped("short")
		return
	}

	switch payload[0] {
	case HdrHandshake:
		m.classifyHandshake(sock, remote, payload)
	case HdrData:
		m.classifyData(remote, payload[1:])
	default:
		m.metrics.DataDropped("unknown_type")
	}
}

// classifyHandshake enqueues the handshake datagram onto the ring for the
// control endpoint to drain. A full ring silently drops the message; the
// sender will retry. The type byte is kept in Data, matching what the
// control endpoint's read operation hands back to the control agent
// verbatim. Datagrams shorter than the minimum handshake length are
// dropped rather than enqueued.
func (m *Module) classifyHandshake(sock *BoundSocket, remote Endpoint, raw []byte) {
	if len(raw) < minHandshakeLen {
		m.metrics.DataDropped("short_handshake")
		return
	}

	msg := &Message{
		Src:  remote.ToFlat(),
		Dst:  sock.Local.ToFlat(),
		Data: raw,
	}
	if !m.ring.Enqueue(msg) {
		m.metrics.RingDropped()
		return
	}
	m.metrics.HandshakeReceived()
}

// classifyData looks up the owning peer under the global lock, acquires a
// reference, and releases the lock before handing the packet to the
// decapsulator. Unconfigured or torn-down peers are silently dropped.
func (m *Module) classifyData(remote Endpoint, body []byte) {
	m.mu.RLock()
	peer := m.flows.Lookup(remote)
	if peer != nil {
		peer.Acquire()
	}
	m.mu.RUnlock()

	if peer == nil {
		m.metrics.DataDropped("no_peer")
		return
	}
	defer peer.Release()

	if !peer.IsRunning() {
		m.metrics.DataDropped("not_running")
		return
	}

	m.decapsulate(peer, body)
}
