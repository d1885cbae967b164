package fastd

import "golang.zx2c4.com/wireguard/tun"

// TUNDevice is the subset of golang.zx2c4.com/wireguard/tun.Device that
// fastd-core depends on. Read/Write move whole IP packets, and Events
// reports carrier changes.
//
// Declaring our own narrow interface (rather than depending on tun.Device
// directly everywhere) keeps peer.go host-agnostic and lets tests supply
// an in-memory fake without dragging in platform TUN creation.
type TUNDevice interface {
	Read(packet []byte, offset int) (int, error)
	Write(packet []byte, offset int) (int, error)
	Flush() error
	MTU() (int, error)
	Name() (string, error)
	Events() <-chan tun.Event
	Close() error
}

// CreateTUNDevice opens a platform TUN device named name with the given
// MTU.
func CreateTUNDevice(name string, mtu int) (TUNDevice, error) {
	return tun.CreateTUN(name, mtu)
}

// LinkFlags mirrors the small set of interface flags set on every cloned
// interface: point-to-point and multicast.
type LinkFlags uint32

const (
	LinkPointToPoint LinkFlags = 1 << iota
	LinkMulticast
	LinkUp
	LinkRunning
)

// Has reports whether all bits of want are set in f.
func (f LinkFlags) Has(want LinkFlags) bool {
	return f&want == want
}
