package fastd

// Wire-format type tags: the first byte of every
// UDP payload fastd-core terminates.
const (
	HdrHandshake = 0x01
	HdrData      = 0x02
)

// MsgBufferSize is the handshake ring's fixed capacity.
const MsgBufferSize = 50

// DefaultMTU is the point-to-point interface MTU applied to every cloned
// peer unless overridden.
const DefaultMTU = 1406

// PubKeySize is the width of the opaque, purely-informational public key
// carried by a peer.
const PubKeySize = 32

// PubKey is the opaque peer public key. The core never interprets it; key
// material and the handshake itself belong to the external control agent.
type PubKey [PubKeySize]byte

// Message is a handshake control message as queued by the inbound
// classifier and drained by the control endpoint's read operation. Data
// is the full fastd payload, including the leading 0x01 type byte.
type Message struct {
	Src  FlatEndpoint
	Dst  FlatEndpoint
	Data []byte
}
