package fastd

import (
	"io"
	"sync"
	"testing"
	"time"

	"golang.zx2c4.com/wireguard/tun"
)

// fakeTUN is an in-memory TUNDevice used by tests that don't need an
// actual platform tunnel device.
type fakeTUN struct {
	mu     sync.Mutex
	closed bool
	events chan tun.Event
	writes [][]byte

	reads chan []byte
	done  chan struct{}
}

func newFakeTUN() *fakeTUN {
	return &fakeTUN{
		events: make(chan tun.Event, 1),
		reads:  make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

// feed queues a packet to be returned by the next Read.
func (f *fakeTUN) feed(packet []byte) {
	f.reads <- packet
}

func (f *fakeTUN) Read(packet []byte, offset int) (int, error) {
	select {
	case data := <-f.reads:
		return copy(packet[offset:], data), nil
	case <-f.done:
		return 0, io.EOF
	}
}

func (f *fakeTUN) Write(packet []byte, offset int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(packet)-offset)
	copy(cp, packet[offset:])
	f.writes = append(f.writes, cp)
	return len(packet), nil
}

func (f *fakeTUN) Flush() error { return nil }

func (f *fakeTUN) MTU() (int, error) { return DefaultMTU, nil }

func (f *fakeTUN) Name() (string, error) { return "faketun0", nil }

func (f *fakeTUN) Events() <-chan tun.Event { return f.events }

func (f *fakeTUN) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeTUN) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestPeerAcquireReleaseWakesDestroy(t *testing.T) {
	iface := newFakeTUN()
	peer := newPeer("fastd0", DefaultMTU, iface, nil)

	peer.Acquire()
	peer.torndown.Store(true)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for peer.refcount.Load() != 0 {
			select {
			case <-peer.destroyed:
			case <-ticker.C:
			}
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let the destroyer goroutine start waiting
	peer.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Release did not wake the waiting destroyer")
	}
}

func TestPeerIsRunningRequiresConfiguredAndNotTornDown(t *testing.T) {
	iface := newFakeTUN()
	peer := newPeer("fastd0", DefaultMTU, iface, nil)

	if peer.IsRunning() {
		t.Fatal("a fresh peer must not be running")
	}

	peer.setConfigured(Endpoint{}, PubKey{}, nil)
	if !peer.IsRunning() {
		t.Fatal("a configured peer must be running")
	}

	peer.torndown.Store(true)
	if peer.IsRunning() {
		t.Fatal("a torn-down peer must not be running")
	}
}

func TestPeerSnapshotReflectsSetConfigured(t *testing.T) {
	iface := newFakeTUN()
	peer := newPeer("fastd0", DefaultMTU, iface, nil)

	sock := &BoundSocket{peers: make(map[*Peer]struct{})}
	remote := Endpoint{Port: 1234}
	peer.setConfigured(remote, PubKey{1, 2, 3}, sock)

	gotRemote, gotSock := peer.snapshot()
	if gotRemote != remote || gotSock != sock {
		t.Fatalf("snapshot() = (%v, %v), want (%v, %v)", gotRemote, gotSock, remote, sock)
	}

	peer.clearSocket()
	if _, gotSock := peer.snapshot(); gotSock != nil {
		t.Fatal("clearSocket did not clear Socket")
	}
}

func TestPeerMarkDownClearsRunningFlag(t *testing.T) {
	iface := newFakeTUN()
	peer := newPeer("fastd0", DefaultMTU, iface, nil)
	peer.setConfigured(Endpoint{}, PubKey{}, nil)

	peer.markDown()

	if peer.Flags.Has(LinkUp) || peer.Flags.Has(LinkRunning) {
		t.Fatal("markDown must clear LinkUp and LinkRunning")
	}
	if !peer.Flags.Has(LinkPointToPoint) {
		t.Fatal("markDown must not clear LinkPointToPoint")
	}
}
