package fastd

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// routineReadFromTUN pumps packets written by the host's IP stack into
// peer's tunnel interface back out onto the wire, one per TUN read. It
// exits when the interface is closed, which Destroy does once the peer's
// refcount reaches zero.
//
// One goroutine per peer mirrors the kernel's per-interface if_output
// path: each tunnel has its own outbound queue, so a slow or stalled peer
// cannot stall another's traffic.
func (m *Module) routineReadFromTUN(peer *Peer) {
	buf := make([]byte, peer.MTU+32)
	for {
		n, err := peer.iface.Read(buf, 0)
		if err != nil {
			return
		}
		if peer.IsTornDown() {
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		version := header.IPVersion(packet)
		var af uint32
		switch version {
		case 4:
			af = unix.AF_INET
		case 6:
			af = unix.AF_INET6
		default:
			peer.oerrors.Add(1)
			m.metrics.DataDropped("bad_version_out")
			continue
		}
		peer.tap(af, packet)

		if err := m.encapsulateAndSend(peer, packet); err != nil {
			peer.oerrors.Add(1)
			peer.log.Errorf("%s: send: %v", peer.Name, err)
		}
	}
}

// encapsulateAndSend prepends the wire data-packet type byte and writes
// the frame to peer's bound socket. payload may be nil, which
// produces the 1-byte keepalive frame decapsulate uses for keepalive
// echoes.
func (m *Module) encapsulateAndSend(peer *Peer, payload []byte) error {
	remote, sock := peer.snapshot()
	if sock == nil || !remote.Addr.IsValid() {
		return ErrAddressNotAvailable
	}

	frame := make([]byte, 1+len(payload))
	frame[0] = HdrData
	copy(frame[1:], payload)

	if err := sock.Send(remote, frame); err != nil {
		return err
	}
	peer.opackets.Add(1)
	return nil
}
