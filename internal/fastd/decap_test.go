package fastd

import (
	"bytes"
	"testing"
	"time"
)

func newTestModuleWithPeer(t *testing.T) (*Module, *Peer, *fakeTUN) {
	t.Helper()
	m := NewModule(nil, nil)
	sock := mustBind(t, m)

	iface := newFakeTUN()
	peer := newPeer("fastd0", DefaultMTU, iface, nil)
	remote := loopback(30000)

	m.mu.Lock()
	if err := m.addPeerLocked(peer, remote, PubKey{}); err != nil {
		m.mu.Unlock()
		t.Fatalf("add_peer: %v", err)
	}
	m.mu.Unlock()

	_ = sock
	return m, peer, iface
}

func TestDecapsulateWritesIPv4PacketToTUN(t *testing.T) {
	m, peer, iface := newTestModuleWithPeer(t)

	packet := make([]byte, 20)
	packet[0] = 0x45

	m.decapsulate(peer, packet)

	if len(iface.writes) != 1 || !bytes.Equal(iface.writes[0], packet) {
		t.Fatalf("tun writes = %v, want [%x]", iface.writes, packet)
	}
	if peer.Stats().IPackets != 1 {
		t.Fatalf("IPackets = %d, want 1", peer.Stats().IPackets)
	}
}

func TestDecapsulateWritesIPv6PacketToTUN(t *testing.T) {
	m, peer, iface := newTestModuleWithPeer(t)

	packet := make([]byte, 40)
	packet[0] = 0x60

	m.decapsulate(peer, packet)

	if len(iface.writes) != 1 || !bytes.Equal(iface.writes[0], packet) {
		t.Fatalf("tun writes = %v, want [%x]", iface.writes, packet)
	}
}

func TestDecapsulateDropsBadVersion(t *testing.T) {
	m, peer, iface := newTestModuleWithPeer(t)

	packet := make([]byte, 20)
	packet[0] = 0x50 // version 5, not IPv4/IPv6

	m.decapsulate(peer, packet)

	if len(iface.writes) != 0 {
		t.Fatalf("tun writes = %v, want none", iface.writes)
	}
	if peer.ierrors.Load() != 1 {
		t.Fatalf("ierrors = %d, want 1", peer.ierrors.Load())
	}
}

func TestDecapsulateDropsShortIPv4Packet(t *testing.T) {
	m, peer, iface := newTestModuleWithPeer(t)

	packet := []byte{0x45, 0x00} // version nibble says v4 but far too short

	m.decapsulate(peer, packet)

	if len(iface.writes) != 0 {
		t.Fatalf("tun writes = %v, want none", iface.writes)
	}
	if peer.ierrors.Load() != 1 {
		t.Fatalf("ierrors = %d, want 1", peer.ierrors.Load())
	}
}

func TestDecapsulateKeepaliveIncrementsIPacketsAndEchoes(t *testing.T) {
	m := NewModule(nil, nil)
	sock := mustBind(t, m)

	iface := newFakeTUN()
	peer := newPeer("fastd0", DefaultMTU, iface, nil)

	raw, remote := rawPeer(t)
	defer raw.Close()

	m.mu.Lock()
	if err := m.addPeerLocked(peer, remote, PubKey{}); err != nil {
		m.mu.Unlock()
		t.Fatalf("add_peer: %v", err)
	}
	m.mu.Unlock()

	m.decapsulate(peer, nil)

	if peer.Stats().IPackets != 1 {
		t.Fatalf("IPackets = %d, want 1", peer.Stats().IPackets)
	}
	if len(iface.writes) != 0 {
		t.Fatalf("keepalive must not be delivered to the TUN device, got %v", iface.writes)
	}

	raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := raw.Read(buf)
	if err != nil {
		t.Fatalf("reading keepalive echo: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte{HdrData}) {
		t.Fatalf("echo = %x, want a single data type byte", buf[:n])
	}

	_ = sock
}

func TestDecapsulateTapReceivesPacket(t *testing.T) {
	m, peer, _ := newTestModuleWithPeer(t)

	var gotAF uint32
	var gotPacket []byte
	peer.Tap = func(af uint32, packet []byte) {
		gotAF = af
		gotPacket = append([]byte(nil), packet...)
	}

	packet := make([]byte, 20)
	packet[0] = 0x45
	m.decapsulate(peer, packet)

	if gotAF != 2 { // unix.AF_INET
		t.Fatalf("tap af = %d, want AF_INET", gotAF)
	}
	if !bytes.Equal(gotPacket, packet) {
		t.Fatalf("tap packet = %x, want %x", gotPacket, packet)
	}
}
