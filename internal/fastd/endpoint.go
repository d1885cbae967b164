package fastd

import "net/netip"

// HashSize is the number of buckets in the peer/flow table.
const HashSize = 64

// FlatEndpoint is the 18-byte ABI-friendly wire form of an Endpoint: 16
// bytes of IPv4-mapped-or-IPv6 address followed by a 2-byte big-endian
// port. It is the payload layout crossing the control endpoint, and the
// header of every handshake message.
type FlatEndpoint [18]byte

// Endpoint is the in-process form: a tagged union of address family,
// address, and port, kept separate from the wire encoding so callers can
// compare and hash endpoints without touching byte layout.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// ToFlat renders e as its canonical 18-byte wire form. IPv4
// addresses are encoded as IPv4-mapped IPv6: bytes 0..9 zero, bytes 10..11
// = 0xFF, bytes 12..15 = the IPv4 address.
func (e Endpoint) ToFlat() FlatEndpoint {
	var flat FlatEndpoint

	if e.Addr.Is4() {
		addr := e.Addr.As4()
		flat[10] = 0xFF
		flat[11] = 0xFF
		copy(flat[12:16], addr[:])
	} else {
		addr := e.Addr.As16()
		copy(flat[0:16], addr[:])
	}

	flat[16] = byte(e.Port >> 8)
	flat[17] = byte(e.Port)

	return flat
}

// FromFlat parses the 18-byte wire form back into an Endpoint.
// An address whose high 12 bytes match the IPv4-mapped prefix is decoded
// as an IPv4 address; everything else is treated as native IPv6.
func FromFlat(flat FlatEndpoint) Endpoint {
	var addr16 [16]byte
	copy(addr16[:], flat[0:16])

	port := uint16(flat[16])<<8 | uint16(flat[17])

	if isV4Mapped(addr16) {
		var addr4 [4]byte
		copy(addr4[:], addr16[12:16])
		return Endpoint{Addr: netip.AddrFrom4(addr4), Port: port}
	}

	return Endpoint{Addr: netip.AddrFrom16(addr16), Port: port}
}

func isV4Mapped(addr [16]byte) bool {
	for i := 0; i < 10; i++ {
		if addr[i] != 0 {
			return false
		}
	}
	return addr[10] == 0xFF && addr[11] == 0xFF
}

// Equal reports whether e and o name the same endpoint: address and port
// must match; for IPv6, a zero scope-id on either side matches any value
// on the other. netip.Addr carries scope as a zone string, so the rule is
// implemented as "empty zone matches any zone".
func (e Endpoint) Equal(o Endpoint) bool {
	if e.Port != o.Port {
		return false
	}

	a, b := e.Addr.Unmap(), o.Addr.Unmap()

	if a.Zone() != "" && b.Zone() != "" && a.Zone() != b.Zone() {
		return false
	}

	return a.WithZone("") == b.WithZone("")
}

// Unspecified reports whether e's address is the unspecified (all-zero)
// address of its family. Bind accepts a wildcard address; add_peer and
// set_remote reject one for a remote.
func (e Endpoint) Unspecified() bool {
	return !e.Addr.IsValid() || e.Addr.IsUnspecified()
}

// Hash implements the deliberately cheap port-only hash: hash(a) = port
// mod HashSize. Collisions walk a short chain in the owning bucket
// (flowtable.go).
func (e Endpoint) Hash() int {
	return int(e.Port) % HashSize
}

// String renders host:port for logs.
func (e Endpoint) String() string {
	if !e.Addr.IsValid() {
		return "<invalid>"
	}
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}
