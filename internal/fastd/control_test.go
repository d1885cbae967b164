package fastd

import (
	"bufio"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func startTestControlServer(t *testing.T) (*Module, net.Conn) {
	t.Helper()

	m := NewModule(nil, nil)
	sockPath := filepath.Join(t.TempDir(), "fastd-core.sock")

	srv, err := ListenControl(sockPath, m, nil)
	if err != nil {
		t.Fatalf("ListenControl: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial control socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return m, conn
}

func sendControlFrame(t *testing.T, conn net.Conn, op byte, payload []byte) (status byte, resp []byte) {
	t.Helper()

	header := make([]byte, 5)
	header[0] = op
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := conn.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	r := bufio.NewReader(conn)
	respStatus, respPayload, err := readFrame(r)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return respStatus, respPayload
}

func TestControlBindThenClose(t *testing.T) {
	_, conn := startTestControlServer(t)

	local := loopback(0).ToFlat()
	status, resp := sendControlFrame(t, conn, opBind, local[:])
	if status != statusOK {
		t.Fatalf("bind status = %d, want statusOK; resp=%q", status, resp)
	}
	if len(resp) != 18 {
		t.Fatalf("bind response length = %d, want 18", len(resp))
	}

	status, _ = sendControlFrame(t, conn, opClose, resp)
	if status != statusOK {
		t.Fatalf("close status = %d, want statusOK", status)
	}

	// Closing an already-closed socket must fail with NotFound, surfaced
	// as an error-status frame carrying the error text.
	status, errResp := sendControlFrame(t, conn, opClose, resp)
	if status != statusError {
		t.Fatalf("double close status = %d, want statusError", status)
	}
	if len(errResp) == 0 {
		t.Fatal("double close error frame carried no message")
	}
}

func TestControlPeerIoctls(t *testing.T) {
	m, conn := startTestControlServer(t)

	if _, err := m.Bind(loopback(0)); err != nil {
		t.Fatalf("bind: %v", err)
	}

	peer := newPeer("fastd0", DefaultMTU, newFakeTUN(), nil)
	remote := loopback(20000)
	m.mu.Lock()
	if err := m.addPeerLocked(peer, remote, PubKey{9}); err != nil {
		m.mu.Unlock()
		t.Fatalf("add_peer: %v", err)
	}
	m.peers = append(m.peers, peer)
	m.mu.Unlock()

	nameFrame := func(name string, extra []byte) []byte {
		out := append([]byte{byte(len(name))}, []byte(name)...)
		return append(out, extra...)
	}

	status, resp := sendControlFrame(t, conn, opGetRemote, nameFrame("fastd0", nil))
	if status != statusOK {
		t.Fatalf("get_remote status = %d, want statusOK", status)
	}
	if len(resp) != PubKeySize+18 {
		t.Fatalf("get_remote response length = %d, want %d", len(resp), PubKeySize+18)
	}
	if resp[0] != 9 {
		t.Fatalf("get_remote pubkey[0] = %d, want 9", resp[0])
	}

	status, resp = sendControlFrame(t, conn, opGetStats, nameFrame("fastd0", nil))
	if status != statusOK {
		t.Fatalf("get_stats status = %d, want statusOK", status)
	}
	if len(resp) != 16 {
		t.Fatalf("get_stats response length = %d, want 16", len(resp))
	}

	status, _ = sendControlFrame(t, conn, opTeardown, nameFrame("fastd0", nil))
	if status != statusOK {
		t.Fatalf("teardown status = %d, want statusOK", status)
	}
	if !peer.IsTornDown() {
		t.Fatal("teardown did not mark the peer torn down")
	}
}

func TestControlUnknownPeerNotFound(t *testing.T) {
	_, conn := startTestControlServer(t)

	name := []byte{byte(len("fastd99"))}
	name = append(name, []byte("fastd99")...)

	status, _ := sendControlFrame(t, conn, opGetStats, name)
	if status != statusError {
		t.Fatalf("get_stats on unknown peer status = %d, want statusError", status)
	}
}

func TestListenControlRemovesStaleSocket(t *testing.T) {
	m := NewModule(nil, nil)
	path := filepath.Join(t.TempDir(), "stale.sock")
	if err := os.WriteFile(path, []byte("not a socket"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	srv, err := ListenControl(path, m, nil)
	if err != nil {
		t.Fatalf("ListenControl over stale file: %v", err)
	}
	srv.Close()
}
