package port

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/shinji-kodama/diag-attach/internal/shell"
)

// ListenerLookup finds the process holding a listening TCP socket on a port.
//
// Lookups are advisory: any failure is reported as found == false, never as
// an error, because nothing on the attach path depends on the answer being
// complete.
type ListenerLookup interface {
	LookupListener(ctx context.Context, port int) (pid int, found bool)
}

// FindListeningProcess is a convenience wrapper for the default lookup chain.
func FindListeningProcess(ctx context.Context, port int, logger *slog.Logger) (int, bool) {
	return NewDefaultListenerLookup(shell.NewExecRunner(), logger).LookupListener(ctx, port)
}

// NewDefaultListenerLookup tries the platform inspection command first and
// falls back to reading the socket table through gopsutil.
func NewDefaultListenerLookup(runner shell.Runner, logger *slog.Logger) ListenerLookup {
	return ChainLookup{
		NewCommandLookup(runner, logger),
		NewSocketTableLookup(logger),
	}
}

// ChainLookup asks each lookup in order and returns the first hit.
type ChainLookup []ListenerLookup

// LookupListener implements ListenerLookup.
func (c ChainLookup) LookupListener(ctx context.Context, port int) (int, bool) {
	for _, l := range c {
		if pid, ok := l.LookupListener(ctx, port); ok {
			return pid, true
		}
	}
	return 0, false
}

// CommandLookup parses the output of the platform's socket inspection tool:
// netstat on Windows, lsof on Linux and macOS.
type CommandLookup struct {
	runner shell.Runner
	logger *slog.Logger

	// GOOS selects the command and parser. Defaults to runtime.GOOS.
	GOOS string
}

// NewCommandLookup creates a CommandLookup for the running platform.
func NewCommandLookup(runner shell.Runner, logger *slog.Logger) *CommandLookup {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CommandLookup{runner: runner, logger: logger, GOOS: runtime.GOOS}
}

// LookupListener implements ListenerLookup.
func (c *CommandLookup) LookupListener(ctx context.Context, port int) (int, bool) {
	switch c.GOOS {
	case "windows":
		lines, err := c.runner.Run(ctx, "netstat", "-ano", "-p", "TCP")
		if err != nil {
			c.logger.Debug("advisory listener lookup failed", "tool", "netstat", "port", port, "err", err)
			return 0, false
		}
		return parseNetstatListener(lines, port)

	case "linux", "darwin":
		line, err := shell.FirstLine(ctx, c.runner, "lsof", "-t", "-s", "TCP:LISTEN", "-i", "TCP:"+strconv.Itoa(port))
		if err != nil {
			// lsof exits 1 when nothing matches, which lands here as well.
			c.logger.Debug("advisory listener lookup failed", "tool", "lsof", "port", port, "err", err)
			return 0, false
		}
		return parseLsofPID(line)

	default:
		return 0, false
	}
}

// parseNetstatListener scans `netstat -ano -p TCP` output. A matching row
// looks like:
//
//	TCP    0.0.0.0:49168    0.0.0.0:0    LISTENING    476
//
// Rows that do not have exactly five columns, or whose PID column is not a
// number, are skipped.
func parseNetstatListener(lines []string, port int) (int, bool) {
	suffix := ":" + strconv.Itoa(port)
	for _, line := range lines {
		if !strings.Contains(line, "LISTENING") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || pid <= 0 {
			continue
		}
		return pid, true
	}
	return 0, false
}

// parseLsofPID parses the first line of `lsof -t` output, which is a bare PID.
func parseLsofPID(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}
	pid, err := strconv.Atoi(line)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// connectionsFunc matches gnet.ConnectionsWithContext so tests can feed a
// fixed socket table.
type connectionsFunc func(ctx context.Context, kind string) ([]gnet.ConnectionStat, error)

// SocketTableLookup reads the kernel socket table through gopsutil.
// It needs no external tools but may miss sockets of other users.
type SocketTableLookup struct {
	connections connectionsFunc
	logger      *slog.Logger
}

// NewSocketTableLookup creates a SocketTableLookup over the live socket table.
func NewSocketTableLookup(logger *slog.Logger) *SocketTableLookup {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketTableLookup{connections: gnet.ConnectionsWithContext, logger: logger}
}

// LookupListener implements ListenerLookup.
func (s *SocketTableLookup) LookupListener(ctx context.Context, port int) (int, bool) {
	conns, err := s.connections(ctx, "tcp")
	if err != nil {
		s.logger.Debug("advisory listener lookup failed", "tool", "socket-table", "port", port, "err", err)
		return 0, false
	}
	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port || c.Pid <= 0 {
			continue
		}
		return int(c.Pid), true
	}
	return 0, false
}
