package fastd

import (
	"fmt"
	"sync"
	"time"

	"github.com/digineo/fastd-core/internal/flog"
)

// NamePrefix is the interface-name prefix applied to every cloned peer.
const NamePrefix = "fastd"

// Metrics is the minimal set of counters module.go updates directly;
// satisfied by internal/metrics.Collector. A nil Metrics is valid and
// turns every method into a no-op, which keeps this package usable
// without pulling in Prometheus for unit tests.
type Metrics interface {
	RingDropped()
	HandshakeReceived()
	DataDropped(reason string)
	SetPeerCount(n int)
}

type noopMetrics struct{}

func (noopMetrics) RingDropped()       {}
func (noopMetrics) HandshakeReceived() {}
func (noopMetrics) DataDropped(string) {}
func (noopMetrics) SetPeerCount(int)   {}

// Module is the single process-wide value that owns the three registries:
// the socket table, the peer/flow table (plus the global peer list), and
// the handshake ring. It is constructed once at load and torn down once
// at unload by Close, which drains peers, then closes sockets, and
// finally drains the ring. Close does not block concurrent CloneCreate
// calls.
type Module struct {
	// mu is the single global read-mostly lock, covering the socket
	// table, the peer/flow table, and the global peer list.
	mu sync.RWMutex

	sockets *SocketTable
	flows   *FlowTable
	ring    *Ring
	peers   []*Peer

	nextUnit int

	log     *flog.Logger
	metrics Metrics
}

// NewModule constructs a Module ready to accept binds and clones. Passing
// a nil metrics uses a no-op implementation.
func NewModule(log *flog.Logger, metrics Metrics) *Module {
	if log == nil {
		log = flog.Silent()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Module{
		sockets: NewSocketTable(log),
		flows:   NewFlowTable(),
		ring:    NewRing(),
		log:     log,
		metrics: metrics,
	}
}

// Ring exposes the handshake ring to the control endpoint.
func (m *Module) Ring() *Ring { return m.ring }

// ------------------------------------------------------------------
// Socket table operations
// ------------------------------------------------------------------

// Bind creates and registers a bound UDP socket listening on local, with
// its receive path wired to the module's inbound classifier.
func (m *Module) Bind(local Endpoint) (*BoundSocket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sockets.Bind(local, m.classify)
}

// CloseSocket closes the bound socket at local, detaching every peer that
// was using it for outbound traffic. The underlying connection is closed,
// and its receive loop awaited, after releasing the global lock: that
// loop dispatches into classify, which itself takes m.mu, so closing
// while holding the lock could deadlock against a packet mid-dispatch.
func (m *Module) CloseSocket(local Endpoint) error {
	m.mu.Lock()
	sock, err := m.sockets.remove(local)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	for _, p := range sock.Peers() {
		p.clearSocket()
		sock.detach(p)
	}
	m.mu.Unlock()

	if err := sock.close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// FindSocket returns the bound socket whose local endpoint exactly
// matches local, used by the control endpoint's outbound-handshake write
// path.
func (m *Module) FindSocket(local Endpoint) *BoundSocket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sockets.Find(local)
}

// FindSocketByFamily is FindSocket's family-fallback sibling, used where a
// caller has only a family-appropriate source and no exact local match.
func (m *Module) FindSocketByFamily(e Endpoint) *BoundSocket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sockets.FindByFamily(e.Addr)
}

// ------------------------------------------------------------------
// Peer lifecycle
// ------------------------------------------------------------------

// CloneParams are the optional {pubkey, remote} parameters a clone_create
// caller may supply.
type CloneParams struct {
	Remote Endpoint
	PubKey PubKey
}

// CloneCreate allocates a new tunnel interface.
// If params is non-nil, the peer is immediately configured via add_peer;
// otherwise it is created detached (NEW state) and must be configured
// later with SetRemote.
func (m *Module) CloneCreate(params *CloneParams) (*Peer, error) {
	m.mu.Lock()
	unit := m.nextUnit
	m.nextUnit++
	m.mu.Unlock()

	name := fmt.Sprintf("%s%d", NamePrefix, unit)

	// TUN creation is a syscall that may block; it must happen without
	// holding the global lock.
	iface, err := CreateTUNDevice(name, DefaultMTU)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfBuffers, err)
	}

	peer := newPeer(name, DefaultMTU, iface, m.log)

	m.mu.Lock()
	if params != nil {
		if err := m.addPeerLocked(peer, params.Remote, params.PubKey); err != nil {
			m.mu.Unlock()
			iface.Close()
			return nil, err
		}
	}
	m.peers = append(m.peers, peer)
	count := len(m.peers)
	m.mu.Unlock()
	m.metrics.SetPeerCount(count)

	go m.routineReadFromTUN(peer)

	return peer, nil
}

// addPeerLocked attaches remote/pubkey to peer and registers it in the
// flow table and its bound socket. Callers must hold m.mu for writing.
func (m *Module) addPeerLocked(peer *Peer, remote Endpoint, pubkey PubKey) error {
	if remote.Unspecified() || remote.Port == 0 {
		return ErrInvalidArgument
	}

	sock := m.sockets.FindByFamily(remote.Addr)
	if sock == nil {
		return ErrAddressNotAvailable
	}

	if existing := m.flows.Lookup(remote); existing != nil && existing != peer {
		return ErrBusy
	}

	peer.setConfigured(remote, pubkey, sock)
	m.flows.Insert(peer)
	sock.attach(peer)

	return nil
}

// SetRemote reconfigures peer's remote endpoint and public key.
// Requesting the peer's own current remote is a no-op success; requesting
// a remote held by a different peer is Busy.
func (m *Module) SetRemote(peer *Peer, remote Endpoint, pubkey PubKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if peer.IsTornDown() {
		return ErrBusy
	}

	_, currentRemote := peer.GetRemote()
	if currentRemote.Addr.IsValid() && currentRemote.Equal(remote) {
		// Same peer, same remote: a no-op success even if another peer
		// were (incorrectly) also found during lookup.
		peer.mu.Lock()
		peer.PubKey = pubkey
		peer.mu.Unlock()
		return nil
	}

	if existing := m.flows.Lookup(remote); existing != nil && existing != peer {
		return ErrBusy
	}

	m.removePeerLocked(peer)
	return m.addPeerLocked(peer, remote, pubkey)
}

// removePeerLocked detaches peer from the flow table and from its bound
// socket. Callers must hold m.mu.
func (m *Module) removePeerLocked(peer *Peer) {
	m.flows.Remove(peer)

	_, sock := peer.snapshot()
	if sock != nil {
		sock.detach(peer)
	}
	peer.clearSocket()
}

// Teardown marks peer for destruction: sets the TEARDOWN flag, brings the
// interface down, and removes it from the flow table and socket list.
// Safe to call concurrently with packet delivery; delivery sites re-check
// IsTornDown after re-acquiring their locks.
func (m *Module) Teardown(peer *Peer) {
	m.mu.Lock()
	peer.torndown.Store(true)
	peer.markDown()
	m.removePeerLocked(peer)
	m.mu.Unlock()
}

// Destroy waits for peer's reference count to reach zero, then releases
// its TUN device. Teardown must have already been called. Destroy blocks
// with no deadline but re-polls periodically so a missed wakeup is
// recovered, mirroring the kernel's rm_sleep(..., hz) loop.
func (m *Module) Destroy(peer *Peer) {
	if !peer.IsTornDown() {
		panic("fastd: Destroy called before Teardown")
	}

	ticker := time.NewTicker(destroyPollInterval)
	defer ticker.Stop()

	for peer.refcount.Load() != 0 {
		select {
		case <-peer.destroyed:
		case <-ticker.C:
		}
	}

	peer.iface.Close()

	m.mu.Lock()
	for i, p := range m.peers {
		if p == peer {
			m.peers = append(m.peers[:i], m.peers[i+1:]...)
			break
		}
	}
	count := len(m.peers)
	m.mu.Unlock()
	m.metrics.SetPeerCount(count)
}

// Peers returns a snapshot of every peer the module knows about,
// configured or not.
func (m *Module) Peers() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Peer, len(m.peers))
	copy(out, m.peers)
	return out
}

// ------------------------------------------------------------------
// Module-wide teardown
// ------------------------------------------------------------------

// Close tears down every peer, closes every bound socket, and drains the
// handshake ring, in that order — the mirror image of the kernel module's
// unload sequence: detach interface cloning first, drain peers,
// close sockets, then drain the ring. Sockets are removed from the table
// under the global lock but closed (and their receive loops awaited)
// after releasing it, for the same reason as CloseSocket.
func (m *Module) Close() {
	for _, peer := range m.Peers() {
		m.Teardown(peer)
		m.Destroy(peer)
	}

	m.mu.Lock()
	socks := m.sockets.removeAll()
	m.mu.Unlock()

	for _, sock := range socks {
		sock.close()
	}

	m.ring.Drain()
}
