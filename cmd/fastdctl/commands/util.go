package commands

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/digineo/fastd-core/internal/fastd"
)

func parseHostPort(hostport string) (fastd.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return fastd.Endpoint{}, err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fastd.Endpoint{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fastd.Endpoint{}, err
	}
	return fastd.Endpoint{Addr: addr, Port: uint16(port)}, nil
}

func parsePubKey(hexStr string) (fastd.PubKey, error) {
	var pk fastd.PubKey
	if hexStr == "" {
		return pk, nil
	}
	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return pk, err
	}
	if len(decoded) != fastd.PubKeySize {
		return pk, fmt.Errorf("pubkey must be %d bytes, got %d", fastd.PubKeySize, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}
