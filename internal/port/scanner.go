package port

import (
	"net"
	"strconv"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

// Scanner checks whether specific TCP ports can be bound on the host.
//
// It asks the operating system directly through net.Listen, rather than
// reading a socket table that could be stale by the time the port is used.
type Scanner struct {
	// host is the address the check binds to. Loopback by default, because
	// the diagnostic service listens there unless told otherwise.
	host string
}

// NewScanner creates a Scanner that checks the loopback address.
func NewScanner() *Scanner {
	return &Scanner{host: model.DefaultTargetIP}
}

// NewScannerWithHost creates a Scanner that checks the given bind address.
func NewScannerWithHost(host string) *Scanner {
	if host == "" {
		host = model.DefaultTargetIP
	}
	return &Scanner{host: host}
}

// IsPortAvailable reports whether a TCP listener can be opened on port.
//
// The listener is closed before returning, so two calls in a row on a free
// port both return true. Every failure (port in use, permission denied,
// out-of-range port) collapses to false.
func (s *Scanner) IsPortAvailable(port int) bool {
	if port < 0 || port > maxPort {
		return false
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// GetUsedPorts returns the ports in [startPort, endPort] that cannot be
// bound right now. Used by `port used <start> <end>` to show occupied ports.
func (s *Scanner) GetUsedPorts(startPort, endPort int) []int {
	var used []int
	for port := startPort; port <= endPort; port++ {
		if !s.IsPortAvailable(port) {
			used = append(used, port)
		}
	}
	return used
}
