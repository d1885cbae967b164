package fastd

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/digineo/fastd-core/internal/flog"
)

// Opcodes exchanged over the control socket. The protocol is the userspace stand-in for /dev/fastd's
// read/write/ioctl surface: opRead/opWrite replace the character device's
// read(2)/write(2) of handshake datagrams, and the rest replace its
// per-unit ioctls.
const (
	opRead = iota + 1
	opWrite
	opBind
	opClose
	opCloneCreate
	opGetRemote
	opSetRemote
	opGetStats
	opTeardown
	opDestroy
)

// Status codes returned as the first byte of every response frame.
const (
	statusOK = iota
	statusError
)

// ControlServer is a Unix-domain socket analogue of the fastd character
// device: each client connection issues framed requests and receives
// framed responses. Each frame is
// [1-byte opcode][4-byte big-endian length][payload].
type ControlServer struct {
	module   *Module
	listener net.Listener
	log      *flog.Logger
}

// ListenControl creates the control socket at path (removing a stale
// socket file left behind by a previous run, matching how /dev/fastd is
// recreated on module load).
func ListenControl(path string, module *Module, log *flog.Logger) (*ControlServer, error) {
	if log == nil {
		log = flog.Silent()
	}

	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	return &ControlServer{module: module, listener: ln, log: log}, nil
}

// Addr returns the bound socket path.
func (s *ControlServer) Addr() string { return s.listener.Addr().String() }

// Serve accepts connections until the listener is closed. Each connection
// is handled sequentially on its own goroutine; fastd-core does not
// multiplex several control clients onto one state machine, mirroring the
// original device's single-open-at-a-time discipline loosely — multiple
// connections are allowed here, but each is independent.
func (s *ControlServer) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close closes the listener, causing Serve to return.
func (s *ControlServer) Close() error {
	return s.listener.Close()
}

func (s *ControlServer) handleConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		op, payload, err := readFrame(r)
		if err != nil {
			return
		}

		resp, err := s.dispatch(conn, op, payload)
		if err != nil {
			writeFrame(conn, statusError, []byte(err.Error()))
			continue
		}
		writeFrame(conn, statusOK, resp)
	}
}

func (s *ControlServer) dispatch(conn net.Conn, op byte, payload []byte) ([]byte, error) {
	switch op {
	case opRead:
		return s.handleRead(conn)
	case opWrite:
		return nil, s.handleWrite(payload)
	case opBind:
		return s.handleBind(payload)
	case opClose:
		return nil, s.handleClose(payload)
	case opCloneCreate:
		return s.handleCloneCreate(payload)
	case opGetRemote, opSetRemote, opGetStats, opTeardown, opDestroy:
		return s.dispatchPeerOp(op, payload)
	default:
		return nil, ErrInvalidArgument
	}
}

// handleRead blocks until a handshake message is available on the ring
// and returns it encoded as Src(18)+Dst(18)+Data.
//
// This diverges from fastd_read's character-device behavior of returning
// zero bytes immediately on an empty ring and leaving readiness to poll():
// a Unix-domain stream connection has no separate poll-for-readability
// call a client can make before read, so handleRead blocks here and relies
// on the ring's Ready() channel instead.
func (s *ControlServer) handleRead(conn net.Conn) ([]byte, error) {
	for {
		msg, ok := s.module.ring.Dequeue()
		if ok {
			out := make([]byte, 0, 18+18+len(msg.Data))
			out = append(out, msg.Src[:]...)
			out = append(out, msg.Dst[:]...)
			out = append(out, msg.Data...)
			return out, nil
		}

		select {
		case <-s.module.ring.Ready():
		case <-connClosed(conn):
			return nil, io.EOF
		}
	}
}

// handleWrite sends an outbound handshake datagram. Payload is Src(18)+Dst(18)+Data, where Src names the bound
// socket to send from.
func (s *ControlServer) handleWrite(payload []byte) error {
	if len(payload) < 36 {
		return ErrInvalidArgument
	}
	var srcFlat, dstFlat FlatEndpoint
	copy(srcFlat[:], payload[0:18])
	copy(dstFlat[:], payload[18:36])
	data := payload[36:]

	src := FromFlat(srcFlat)
	dst := FromFlat(dstFlat)

	sock := s.module.FindSocket(src)
	if sock == nil {
		sock = s.module.FindSocketByFamily(src)
	}
	if sock == nil {
		return ErrNotFound
	}

	return sock.Send(dst, data)
}

func (s *ControlServer) handleBind(payload []byte) ([]byte, error) {
	var flat FlatEndpoint
	if len(payload) != 18 {
		return nil, ErrInvalidArgument
	}
	copy(flat[:], payload)

	sock, err := s.module.Bind(FromFlat(flat))
	if err != nil {
		return nil, err
	}

	out := sock.Local.ToFlat()
	return out[:], nil
}

func (s *ControlServer) handleClose(payload []byte) error {
	var flat FlatEndpoint
	if len(payload) != 18 {
		return ErrInvalidArgument
	}
	copy(flat[:], payload)
	return s.module.CloseSocket(FromFlat(flat))
}

// handleCloneCreate creates a new tunnel interface. Payload is
// hasParams(1 byte) [+ PubKey(32) + Remote(18) when hasParams != 0].
// Response is the new interface's name.
func (s *ControlServer) handleCloneCreate(payload []byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, ErrInvalidArgument
	}

	var params *CloneParams
	if payload[0] != 0 {
		if len(payload) < 1+PubKeySize+18 {
			return nil, ErrInvalidArgument
		}
		var pk PubKey
		copy(pk[:], payload[1:1+PubKeySize])
		var flat FlatEndpoint
		copy(flat[:], payload[1+PubKeySize:1+PubKeySize+18])
		params = &CloneParams{Remote: FromFlat(flat), PubKey: pk}
	}

	peer, err := s.module.CloneCreate(params)
	if err != nil {
		return nil, err
	}

	return []byte(peer.Name), nil
}

// dispatchPeerOp handles the per-peer ioctl table (ctltable.go).
func (s *ControlServer) dispatchPeerOp(op byte, payload []byte) ([]byte, error) {
	name, rest, err := readIfName(payload)
	if err != nil {
		return nil, err
	}

	peer := s.findPeerByName(name)
	if peer == nil {
		return nil, ErrNotFound
	}

	handler, ok := peerIoctlTable[op]
	if !ok {
		return nil, ErrInvalidArgument
	}
	return handler(s.module, peer, rest)
}

func (s *ControlServer) findPeerByName(name string) *Peer {
	for _, p := range s.module.Peers() {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// ------------------------------------------------------------------
// Framing
// ------------------------------------------------------------------

func readFrame(r *bufio.Reader) (op byte, payload []byte, err error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	op = header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if length > 1<<20 {
		return 0, nil, ErrInvalidArgument
	}
	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return op, payload, nil
}

func writeFrame(w io.Writer, status byte, payload []byte) error {
	header := make([]byte, 5)
	header[0] = status
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readIfName(payload []byte) (name string, rest []byte, err error) {
	if len(payload) < 1 {
		return "", nil, ErrInvalidArgument
	}
	n := int(payload[0])
	if len(payload) < 1+n {
		return "", nil, ErrInvalidArgument
	}
	return string(payload[1 : 1+n]), payload[1+n:], nil
}

// connClosed returns a channel that never fires; Unix conns don't expose a
// portable "closed" notification short of a failed read, so handleRead's
// select relies on Ring.Ready() firing as the normal wakeup path and on
// the next read from the control connection failing once it is closed.
func connClosed(net.Conn) <-chan struct{} {
	return nil
}
