package fastd

import "testing"

// recordingMetrics captures the reasons DataDropped was called with, so
// tests can assert on why a packet was rejected instead of just whether.
type recordingMetrics struct {
	dropped []string
}

func (r *recordingMetrics) RingDropped()       {}
func (r *recordingMetrics) HandshakeReceived() {}
func (r *recordingMetrics) DataDropped(reason string) {
	r.dropped = append(r.dropped, reason)
}
func (r *recordingMetrics) SetPeerCount(int) {}

func TestClassifyHandshakeRejectsShortDatagram(t *testing.T) {
	metrics := &recordingMetrics{}
	m := NewModule(nil, metrics)
	sock := mustBind(t, m)

	remote := loopback(40000)

	// One byte is just the type byte; a real handshake needs at least 4.
	m.classify(sock, remote, []byte{HdrHandshake, 0x00, 0x00})

	if m.ring.Len() != 0 {
		t.Fatalf("ring.Len() = %d, want 0 (short handshake must not be queued)", m.ring.Len())
	}
	if len(metrics.dropped) != 1 || metrics.dropped[0] != "short_handshake" {
		t.Fatalf("dropped reasons = %v, want [short_handshake]", metrics.dropped)
	}
}

func TestClassifyHandshakeAcceptsMinimumLength(t *testing.T) {
	metrics := &recordingMetrics{}
	m := NewModule(nil, metrics)
	sock := mustBind(t, m)

	remote := loopback(40001)

	m.classify(sock, remote, []byte{HdrHandshake, 0x00, 0x00, 0x00})

	if m.ring.Len() != 1 {
		t.Fatalf("ring.Len() = %d, want 1", m.ring.Len())
	}
	if len(metrics.dropped) != 0 {
		t.Fatalf("dropped reasons = %v, want none", metrics.dropped)
	}
}
