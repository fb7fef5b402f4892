//go:build !linux

package ipc

import "net"

// VerifyPeerIsCurrentUser relies on the 0600 socket mode where SO_PEERCRED
// is unavailable.
func VerifyPeerIsCurrentUser(net.Conn) (bool, error) {
	return true, nil
}
