package fastd

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/digineo/fastd-core/internal/flog"
)

// classifierFunc is the userspace analogue of the kernel's
// udp_set_kernel_tunneling callback: it is invoked once
// per received datagram with the raw payload and the remote endpoint it
// arrived from.
type classifierFunc func(sock *BoundSocket, remote Endpoint, payload []byte)

// BoundSocket is a single bound UDP listener owned by the socket table,
// plus the list of peers that use it for outbound traffic. conn is the
// listening socket; the receive loop below dispatches every inbound
// datagram to the classifier installed at bind time.
type BoundSocket struct {
	Local Endpoint

	conn *net.UDPConn

	mu    sync.Mutex
	peers map[*Peer]struct{}

	classify classifierFunc
	log      *flog.Logger

	closeOnce sync.Once
	stopped   chan struct{}
}

// Peers returns a snapshot of the peers currently attached to sock.
func (sock *BoundSocket) Peers() []*Peer {
	sock.mu.Lock()
	defer sock.mu.Unlock()

	out := make([]*Peer, 0, len(sock.peers))
	for p := range sock.peers {
		out = append(out, p)
	}
	return out
}

func (sock *BoundSocket) attach(p *Peer) {
	sock.mu.Lock()
	sock.peers[p] = struct{}{}
	sock.mu.Unlock()
}

func (sock *BoundSocket) detach(p *Peer) {
	sock.mu.Lock()
	delete(sock.peers, p)
	sock.mu.Unlock()
}

// Send transmits payload to dst over sock's underlying UDP socket (used by
// the encapsulator and by the control endpoint's outbound-handshake write
// path).
func (sock *BoundSocket) Send(dst Endpoint, payload []byte) error {
	addr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(dst.Addr, dst.Port))
	_, err := sock.conn.WriteToUDP(payload, addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (sock *BoundSocket) recvLoop() {
	defer close(sock.stopped)

	buf := make([]byte, 65535)
	for {
		n, addr, err := sock.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}

		remote := Endpoint{Addr: addr.Addr(), Port: addr.Port()}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		sock.classify(sock, remote, payload)
	}
}

func (sock *BoundSocket) close() error {
	var err error
	sock.closeOnce.Do(func() {
		err = sock.conn.Close()
		<-sock.stopped
	})
	return err
}

// SocketTable is the list of bound sockets protected by the module's
// global lock; callers always hold Module.mu around mutating operations.
type SocketTable struct {
	sockets []*BoundSocket
	log     *flog.Logger
}

// NewSocketTable constructs an empty table.
func NewSocketTable(log *flog.Logger) *SocketTable {
	return &SocketTable{log: log}
}

// Bind creates a UDP socket, binds it to local, and installs classify as
// its receive-path dispatcher. The caller must hold
// the table's owning write-lock. Bind does not itself promise idempotence:
// a second bind to the same endpoint is accepted or rejected by the OS,
// and that error is propagated unchanged.
func (t *SocketTable) Bind(local Endpoint, classify classifierFunc) (*BoundSocket, error) {
	// Unlike a peer remote (which must name a real destination), a bind
	// target's address is allowed to be the wildcard (0.0.0.0/::) — that
	// is the normal way to listen on every local address. Only a
	// caller-supplied zero-value Endpoint (no family at all) is rejected
	// here.
	if !local.Addr.IsValid() {
		return nil, ErrAddressNotAvailable
	}

	udpAddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(local.Addr, local.Port))
	conn, err := net.ListenUDP(udpNetwork(local.Addr), udpAddr)
	if err != nil {
		return nil, err
	}

	// The OS may have picked an ephemeral port (local.Port == 0); read it
	// back so Local is always the socket's actual bound endpoint.
	actual := conn.LocalAddr().(*net.UDPAddr)
	boundAddr, ok := netip.AddrFromSlice(actual.IP)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: could not parse bound address", ErrIO)
	}

	sock := &BoundSocket{
		Local:    Endpoint{Addr: boundAddr.Unmap(), Port: uint16(actual.Port)},
		conn:     conn,
		peers:    make(map[*Peer]struct{}),
		classify: classify,
		log:      t.log,
		stopped:  make(chan struct{}),
	}

	go sock.recvLoop()

	t.sockets = append(t.sockets, sock)
	return sock, nil
}

// Close finds the bound socket whose local endpoint exactly matches local,
// closes its underlying connection, and removes it from the table.
// Returns ErrNotFound if no such socket exists. close blocks until sock's
// receive loop has exited; callers holding a lock that the receive loop's
// dispatch path (classify) also acquires must use remove instead and
// close the returned socket after releasing that lock.
func (t *SocketTable) Close(local Endpoint) error {
	sock, err := t.remove(local)
	if err != nil {
		return err
	}
	if err := sock.close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// remove detaches the bound socket whose local endpoint exactly matches
// local from the table without closing it. Returns ErrNotFound if no such
// socket exists.
func (t *SocketTable) remove(local Endpoint) (*BoundSocket, error) {
	for i, sock := range t.sockets {
		if sock.Local.Equal(local) {
			t.sockets = append(t.sockets[:i], t.sockets[i+1:]...)
			return sock, nil
		}
	}
	return nil, ErrNotFound
}

// Find returns the bound socket whose local endpoint exactly matches
// local, or nil.
func (t *SocketTable) Find(local Endpoint) *BoundSocket {
	for _, sock := range t.sockets {
		if sock.Local.Equal(local) {
			return sock
		}
	}
	return nil
}

// FindByFamily returns the first bound socket whose family matches addr's
//, used by the outbound-handshake write path
// when the caller supplied only a family-appropriate source.
func (t *SocketTable) FindByFamily(addr netip.Addr) *BoundSocket {
	wantV4 := addr.Is4() || addr.Is4In6()
	for _, sock := range t.sockets {
		sockIsV4 := sock.Local.Addr.Is4() || sock.Local.Addr.Is4In6()
		if sockIsV4 == wantV4 {
			return sock
		}
	}
	return nil
}

// CloseAll closes and discards every bound socket; called on module
// teardown. Like Close, this blocks on each socket's receive loop exiting;
// callers holding the table's owning lock must use removeAll instead.
func (t *SocketTable) CloseAll() {
	for _, sock := range t.removeAll() {
		sock.close()
	}
}

// removeAll detaches every bound socket from the table without closing
// any of them, for the same reason as remove.
func (t *SocketTable) removeAll() []*BoundSocket {
	out := t.sockets
	t.sockets = nil
	return out
}

func udpNetwork(addr netip.Addr) string {
	if addr.Is4() || addr.Is4In6() {
		return "udp4"
	}
	return "udp6"
}
