package fastd

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// decapsulate delivers a data packet's body to peer's tunnel interface.
// body has already had the wire type byte stripped off by the
// classifier.
//
// A zero-length body is the keepalive special case: it carries no
// packet at all and is answered with an empty data frame rather than
// delivered to the TUN device.
func (m *Module) decapsulate(peer *Peer, body []byte) {
	if len(body) == 0 {
		peer.ipackets.Add(1)
		if err := m.encapsulateAndSend(peer, nil); err != nil {
			peer.log.Errorf("%s: keepalive echo: %v", peer.Name, err)
		}
		return
	}

	version := header.IPVersion(body)

	var af uint32
	switch version {
	case 4:
		if len(body) < header.IPv4MinimumSize {
			peer.ierrors.Add(1)
			m.metrics.DataDropped("short_v4")
			return
		}
		af = unix.AF_INET
	case 6:
		if len(body) < header.IPv6MinimumSize {
			peer.ierrors.Add(1)
			m.metrics.DataDropped("short_v6")
			return
		}
		af = unix.AF_INET6
	default:
		peer.ierrors.Add(1)
		m.metrics.DataDropped("bad_version")
		return
	}

	peer.tap(af, body)
	peer.ipackets.Add(1)

	if _, err := peer.iface.Write(body, 0); err != nil {
		peer.ierrors.Add(1)
		peer.log.Errorf("%s: write to tun: %v", peer.Name, err)
	}
}
