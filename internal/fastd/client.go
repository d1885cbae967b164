package fastd

import (
	"bufio"
	"errors"
	"fmt"
	"net"
)

// Client is a thin synchronous client for the control socket's framed
// protocol (control.go), used by the fastdctl admin tool. It holds one
// request in flight at a time, matching the server's per-connection
// sequential dispatch.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// DialControl connects to the control socket at path.
func DialControl(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// call sends one framed request and returns the response payload, turning
// a statusError response into a Go error.
func (c *Client) call(op byte, payload []byte) ([]byte, error) {
	if err := writeFrame(c.conn, op, payload); err != nil {
		return nil, err
	}
	status, resp, err := readFrame(c.r)
	if err != nil {
		return nil, err
	}
	if status == statusError {
		return nil, errors.New(string(resp))
	}
	return resp, nil
}

// Bind issues opBind and returns the socket's actual bound endpoint.
func (c *Client) Bind(local Endpoint) (Endpoint, error) {
	flat := local.ToFlat()
	resp, err := c.call(opBind, flat[:])
	if err != nil {
		return Endpoint{}, err
	}
	var out FlatEndpoint
	copy(out[:], resp)
	return FromFlat(out), nil
}

// CloseSocket issues opClose for the given bound local endpoint.
func (c *Client) CloseSocket(local Endpoint) error {
	flat := local.ToFlat()
	_, err := c.call(opClose, flat[:])
	return err
}

// CloneCreate issues opCloneCreate and returns the new interface's name.
func (c *Client) CloneCreate(params *CloneParams) (string, error) {
	payload := []byte{0}
	if params != nil {
		payload[0] = 1
		payload = append(payload, params.PubKey[:]...)
		flat := params.Remote.ToFlat()
		payload = append(payload, flat[:]...)
	}
	resp, err := c.call(opCloneCreate, payload)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// GetRemote issues opGetRemote for the named peer.
func (c *Client) GetRemote(name string) (PubKey, Endpoint, error) {
	resp, err := c.call(opGetRemote, ifNameFrame(name, nil))
	if err != nil {
		return PubKey{}, Endpoint{}, err
	}
	if len(resp) != PubKeySize+18 {
		return PubKey{}, Endpoint{}, ErrIO
	}
	var pk PubKey
	copy(pk[:], resp[:PubKeySize])
	var flat FlatEndpoint
	copy(flat[:], resp[PubKeySize:])
	return pk, FromFlat(flat), nil
}

// SetRemote issues opSetRemote for the named peer.
func (c *Client) SetRemote(name string, remote Endpoint, pubkey PubKey) error {
	flat := remote.ToFlat()
	arg := append(append([]byte{}, pubkey[:]...), flat[:]...)
	_, err := c.call(opSetRemote, ifNameFrame(name, arg))
	return err
}

// GetStats issues opGetStats for the named peer.
func (c *Client) GetStats(name string) (Stats, error) {
	resp, err := c.call(opGetStats, ifNameFrame(name, nil))
	if err != nil {
		return Stats{}, err
	}
	if len(resp) != 16 {
		return Stats{}, ErrIO
	}
	return Stats{
		IPackets: beUint64(resp[0:8]),
		OPackets: beUint64(resp[8:16]),
	}, nil
}

// Teardown issues opTeardown for the named peer.
func (c *Client) Teardown(name string) error {
	_, err := c.call(opTeardown, ifNameFrame(name, nil))
	return err
}

// Destroy issues opDestroy for the named peer; it blocks server-side until
// the peer's refcount reaches zero.
func (c *Client) Destroy(name string) error {
	_, err := c.call(opDestroy, ifNameFrame(name, nil))
	return err
}

func ifNameFrame(name string, extra []byte) []byte {
	out := make([]byte, 0, 1+len(name)+len(extra))
	out = append(out, byte(len(name)))
	out = append(out, []byte(name)...)
	out = append(out, extra...)
	return out
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
