package fastd

import "encoding/binary"

// peerIoctlHandler matches one entry of the kernel's per-unit ioctl table:
// {func, argSize, direction}, collapsed here into a single function since
// Go has no separate "copy args in/out" step.
type peerIoctlHandler func(m *Module, peer *Peer, arg []byte) ([]byte, error)

// peerIoctlTable dispatches the control endpoint's per-peer operations:
// GET_REMOTE, SET_REMOTE, GET_STATS, plus the TEARDOWN and DESTROY
// lifecycle calls the control agent uses to retire a peer.
var peerIoctlTable = map[byte]peerIoctlHandler{
	opGetRemote: handleGetRemote,
	opSetRemote: handleSetRemote,
	opGetStats:  handleGetStats,
	opTeardown:  handleTeardown,
	opDestroy:   handleDestroy,
}

// handleGetRemote returns PubKey(32)+Remote(18), the GET_REMOTE ioctl's
// argument layout.
func handleGetRemote(_ *Module, peer *Peer, _ []byte) ([]byte, error) {
	pubkey, remote := peer.GetRemote()
	flat := remote.ToFlat()

	out := make([]byte, 0, PubKeySize+18)
	out = append(out, pubkey[:]...)
	out = append(out, flat[:]...)
	return out, nil
}

// handleSetRemote applies a new PubKey(32)+Remote(18) to peer, deferring
// to Module.SetRemote's no-op/busy resolution.
func handleSetRemote(m *Module, peer *Peer, arg []byte) ([]byte, error) {
	if len(arg) != PubKeySize+18 {
		return nil, ErrInvalidArgument
	}

	var pk PubKey
	copy(pk[:], arg[:PubKeySize])
	var flat FlatEndpoint
	copy(flat[:], arg[PubKeySize:])

	if err := m.SetRemote(peer, FromFlat(flat), pk); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleGetStats returns IPackets(8)+OPackets(8), the GET_STATS ioctl's
// struct iffastdstats layout.
func handleGetStats(_ *Module, peer *Peer, _ []byte) ([]byte, error) {
	stats := peer.Stats()
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[0:8], stats.IPackets)
	binary.BigEndian.PutUint64(out[8:16], stats.OPackets)
	return out, nil
}

// handleTeardown marks peer for destruction.
func handleTeardown(m *Module, peer *Peer, _ []byte) ([]byte, error) {
	m.Teardown(peer)
	return nil, nil
}

// handleDestroy blocks until peer's reference count reaches zero and
// releases its resources.
func handleDestroy(m *Module, peer *Peer, _ []byte) ([]byte, error) {
	m.Destroy(peer)
	return nil, nil
}
