package fastd

// FlowTable is the hash-indexed map remote-endpoint → peer, plus the
// global list of all peers. Buckets are
// chained slices rather than the kernel's intrusive LIST_ENTRY, but the
// lookup discipline is the same: hash(remote), then a linear scan within
// the bucket comparing with Endpoint.Equal.
//
// Callers are expected to hold the module's global lock around every
// method here — a write-lock for Insert/Remove, at least a read-lock for
// Lookup — exactly as the kernel module requires rm_wlock/rm_rlock around
// the equivalent C functions.
type FlowTable struct {
	buckets [HashSize][]*Peer
	all     []*Peer
}

// NewFlowTable returns an empty table.
func NewFlowTable() *FlowTable {
	return &FlowTable{}
}

// Insert adds peer to the flow hash and the global peer list. peer.Remote
// must already be set to a specified endpoint with a non-zero port;
// callers enforce this via add_peer/set_remote rather than Insert
// re-validating it.
func (ft *FlowTable) Insert(peer *Peer) {
	h := peer.Remote.Hash()
	ft.buckets[h] = append(ft.buckets[h], peer)
	ft.all = append(ft.all, peer)
}

// Remove deletes peer from its bucket and from the global list, by
// identity rather than by re-comparing endpoints. It is a no-op if peer is not
// present, which happens when a peer was created but never configured
// with a remote.
func (ft *FlowTable) Remove(peer *Peer) {
	h := peer.Remote.Hash()
	ft.buckets[h] = removeByIdentity(ft.buckets[h], peer)
	ft.all = removeByIdentity(ft.all, peer)
}

func removeByIdentity(peers []*Peer, target *Peer) []*Peer {
	for i, p := range peers {
		if p == target {
			return append(peers[:i], peers[i+1:]...)
		}
	}
	return peers
}

// Lookup returns the peer whose Remote matches endpoint, or nil. Matching
// uses Endpoint.Equal, so IPv6 scope-id zero matches any scope-id as
// usual.
func (ft *FlowTable) Lookup(endpoint Endpoint) *Peer {
	for _, p := range ft.buckets[endpoint.Hash()] {
		if p.Remote.Equal(endpoint) {
			return p
		}
	}
	return nil
}

// All returns a snapshot of every peer currently in the table, in
// insertion order.
func (ft *FlowTable) All() []*Peer {
	out := make([]*Peer, len(ft.all))
	copy(out, ft.all)
	return out
}
