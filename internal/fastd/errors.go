package fastd

import "errors"

// Sentinel errors for the seven abstract error kinds of the control-path
// API. Packet-path failures are never returned to a caller; they
// increment a counter and drop (see decap.go/encap.go/classifier.go).
var (
	// ErrInvalidArgument covers malformed ioctl size/direction, an
	// unspecified or zero-port address where one is required, and a
	// control-table command index out of range.
	ErrInvalidArgument = errors.New("fastd: invalid argument")

	// ErrAddressNotAvailable covers an unspecified bind target or the
	// absence of a bound socket of the right family for add_peer.
	ErrAddressNotAvailable = errors.New("fastd: address not available")

	// ErrBusy covers a peer endpoint already taken by another peer, or a
	// peer that is already tearing down.
	ErrBusy = errors.New("fastd: busy")

	// ErrNotFound covers close/send targeting an unknown endpoint.
	ErrNotFound = errors.New("fastd: not found")

	// ErrOutOfBuffers covers allocation failure on the packet path.
	ErrOutOfBuffers = errors.New("fastd: out of buffers")

	// ErrNetworkDown covers output called on a non-running interface.
	ErrNetworkDown = errors.New("fastd: network is down")

	// ErrIO covers a socket transmit failure propagated from the kernel.
	ErrIO = errors.New("fastd: i/o error")
)
