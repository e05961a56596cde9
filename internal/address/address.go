package address

import (
	"net"
	"strings"
)

// IsLocalhost reports whether the host (optionally carrying a port) refers to the local machine.
// An empty host means all the interfaces, which is counted as local too.
func IsLocalhost(addr string) bool {
	host := stripPort(addr)
	if len(host) == 0 || strings.EqualFold(host, "localhost") {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}

	return strings.Trim(addr, "[]")
}
