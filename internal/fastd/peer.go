package fastd

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/digineo/fastd-core/internal/flog"
)

// destroyPollInterval is how often Destroy re-checks the refcount while
// waiting for it to reach zero: a bounded poll as a fallback in case the
// wakeup channel send races with the waiter, not a deadline.
const destroyPollInterval = 10 * time.Millisecond

// TapFunc receives every packet fastd-core hands to, or accepts from, the
// host IP stack, tagged with the address family exactly as BPF_MTAP2
// prepends it. A nil TapFunc on a peer disables tapping.
type TapFunc func(af uint32, packet []byte)

// Stats mirrors the kmod's struct iffastdstats, returned by the
// GET_STATS per-interface ioctl.
type Stats struct {
	IPackets uint64
	OPackets uint64
}

// Peer is a point-to-point tunnel interface bound to exactly one remote
// endpoint and (once configured) one local bound socket.
// It corresponds to the kernel's fastd_softc, with the TUN device standing
// in for the cloned ifnet.
type Peer struct {
	Name string
	MTU  int

	// mu guards Remote, PubKey, Socket, and Flags. The module's global
	// lock still guards flow-table/socket-table membership; this lock
	// exists so a
	// reader can observe a self-consistent (remote, pubkey, socket)
	// triple without taking the global lock.
	mu     sync.RWMutex
	Remote Endpoint
	PubKey PubKey
	Socket *BoundSocket
	Flags  LinkFlags

	refcount  atomic.Int32
	torndown  atomic.Bool
	destroyed chan struct{}

	iface TUNDevice
	Tap   TapFunc

	ipackets atomic.Uint64
	opackets atomic.Uint64
	ierrors  atomic.Uint64
	oerrors  atomic.Uint64

	log *flog.Logger
}

// newPeer allocates a detached peer bound to the given TUN device. It
// corresponds to the allocation half of the kernel's fastd_clone_create,
// before any optional {remote,pubkey} parameters are applied.
func newPeer(name string, mtu int, iface TUNDevice, log *flog.Logger) *Peer {
	if log == nil {
		log = flog.Silent()
	}
	return &Peer{
		Name:      name,
		MTU:       mtu,
		Flags:     LinkPointToPoint | LinkMulticast,
		iface:     iface,
		destroyed: make(chan struct{}),
		log:       log,
	}
}

// Acquire increments the reference count, keeping the peer alive past a
// concurrent Teardown/Destroy. Every
// Acquire must be matched by a Release.
func (p *Peer) Acquire() {
	p.refcount.Add(1)
}

// Release decrements the reference count and wakes a blocked Destroy if it
// just reached zero.
func (p *Peer) Release() {
	if p.refcount.Add(-1) == 0 {
		select {
		case p.destroyed <- struct{}{}:
		default:
		}
	}
}

// IsTornDown reports whether TEARDOWN has been observed. Delivery sites
// must re-check this after re-acquiring a lock, since the flag can flip
// between a flow-table lookup and the eventual packet delivery.
func (p *Peer) IsTornDown() bool {
	return p.torndown.Load()
}

// IsRunning reports whether the interface is configured and up, i.e.
// whether the inbound classifier may dispatch data packets to it.
func (p *Peer) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Flags.Has(LinkRunning) && !p.torndown.Load()
}

// snapshot returns Remote/Socket under the per-peer lock, for use by code
// that must drop the global lock before touching the IP stack.
func (p *Peer) snapshot() (Endpoint, *BoundSocket) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Remote, p.Socket
}

// Stats returns the interface packet counters.
func (p *Peer) Stats() Stats {
	return Stats{
		IPackets: p.ipackets.Load(),
		OPackets: p.opackets.Load(),
	}
}

// GetRemote returns the peer's current public key and remote endpoint.
func (p *Peer) GetRemote() (PubKey, Endpoint) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.PubKey, p.Remote
}

// Status renders a short human-readable peer summary. No control-socket
// operation returns it.
func (p *Peer) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.Remote.Addr.IsValid() {
		return "\tremote: unconfigured\n"
	}
	return "\tremote=" + p.Remote.String() + "\n"
}

func (p *Peer) tap(af uint32, packet []byte) {
	if p.Tap != nil {
		p.Tap(af, packet)
	}
}

func (p *Peer) setConfigured(remote Endpoint, pubkey PubKey, sock *BoundSocket) {
	p.mu.Lock()
	p.Remote = remote
	p.PubKey = pubkey
	p.Socket = sock
	p.Flags |= LinkUp | LinkRunning
	p.mu.Unlock()
}

func (p *Peer) clearSocket() {
	p.mu.Lock()
	p.Socket = nil
	p.mu.Unlock()
}

func (p *Peer) markDown() {
	p.mu.Lock()
	p.Flags &^= LinkUp | LinkRunning
	p.mu.Unlock()
}
