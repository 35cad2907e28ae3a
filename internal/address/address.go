// Package address normalizes listening addresses.
package address

import (
	"net"
	"strings"
)

const DefaultHost = "0.0.0.0"

// Normalize fills in the host if only the port is given. Addresses without a port are
// returned as is, so binding fails on them with a meaningful error.
func Normalize(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || len(host) > 0 {
		return addr
	}

	return net.JoinHostPort(DefaultHost, port)
}

// IsLocal reports whether the address points at the loopback. The unspecified host counts
// as local too, since no public name can be derived from it.
func IsLocal(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	if len(host) == 0 || strings.EqualFold(host, "localhost") {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}
