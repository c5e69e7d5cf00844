//go:build !linux

package httpapi

import (
	"errors"
	"net"
)

func peerCredentials(net.Conn) (Peer, error) {
	return Peer{}, errors.New("peer credentials not supported on this platform")
}
