package attach

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

// DefaultAttachTimeout bounds how long AttachPID waits for the target to
// start its attach listener.
const DefaultAttachTimeout = 6 * time.Second

// Attach listener file names inside the target's temporary directory.
const (
	socketPrefix  = ".java_pid"
	triggerPrefix = ".attach_pid"
)

const (
	protocolVersion = "1"
	// The listener always expects exactly three arguments.
	protocolArgs = 3
)

// ErrDetached is returned by a handle that was already detached.
var ErrDetached = errors.New("attach handle already detached")

// ErrUnsupportedPlatform is returned where the attach listener is not
// reachable through a UNIX socket.
var ErrUnsupportedPlatform = fmt.Errorf("dynamic attach is not supported on %s", runtime.GOOS)

// HotSpotProvider attaches to HotSpot JVMs through their attach listener.
type HotSpotProvider struct {
	// AttachTimeout bounds the wait for the attach listener socket.
	AttachTimeout time.Duration

	logger *slog.Logger

	// procRoot and tmpDir are overridden in tests.
	procRoot string
	tmpDir   string
}

// NewHotSpotProvider creates a provider with DefaultAttachTimeout.
// A nil logger discards output.
func NewHotSpotProvider(logger *slog.Logger) *HotSpotProvider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HotSpotProvider{
		AttachTimeout: DefaultAttachTimeout,
		logger:        logger,
		procRoot:      "/proc",
	}
}

// List returns the JVMs visible to the current user.
func (p *HotSpotProvider) List(ctx context.Context) ([]model.Descriptor, error) {
	return listDescriptors(ctx, p.perfDataRoots(), p.logger)
}

// AttachDescriptor attaches to the process behind d.
func (p *HotSpotProvider) AttachDescriptor(ctx context.Context, d model.Descriptor) (VirtualMachine, error) {
	pid := d.PID
	if pid == 0 {
		n, err := strconv.Atoi(d.ID)
		if err != nil {
			return nil, fmt.Errorf("descriptor id %q is not a process id", d.ID)
		}
		pid = n
	}
	return p.AttachPID(ctx, pid)
}

func (p *HotSpotProvider) perfDataRoots() []string {
	if p.tmpDir != "" {
		return []string{p.tmpDir}
	}
	roots := []string{os.TempDir()}
	if runtime.GOOS != "windows" && os.TempDir() != "/tmp" {
		roots = append(roots, "/tmp")
	}
	return roots
}

// hotspotVM is an open handle on one attach listener socket. Every command
// uses a fresh connection, as the listener closes it after each reply.
type hotspotVM struct {
	pid        int
	socketPath string
	logger     *slog.Logger
	detached   bool
}

func newHotSpotVM(pid int, socketPath string, logger *slog.Logger) *hotspotVM {
	return &hotspotVM{pid: pid, socketPath: socketPath, logger: logger}
}

func (vm *hotspotVM) ID() string {
	return strconv.Itoa(vm.pid)
}

func (vm *hotspotVM) SystemProperties(ctx context.Context) (map[string]string, error) {
	body, err := vm.execute(ctx, "properties")
	if err != nil {
		return nil, err
	}
	return parseProperties(body), nil
}

func (vm *hotspotVM) LoadAgent(ctx context.Context, agentPath, options string) error {
	arg := agentPath
	if options != "" {
		arg += "=" + options
	}
	body, err := vm.execute(ctx, "load", "instrument", "false", arg)
	if err != nil {
		return err
	}
	return checkLoadResult(body)
}

func (vm *hotspotVM) Detach() error {
	if vm.detached {
		return ErrDetached
	}
	vm.detached = true
	vm.logger.Debug("detached", "pid", vm.pid)
	return nil
}

// execute sends one command and returns the reply body after the status line.
func (vm *hotspotVM) execute(ctx context.Context, cmd string, args ...string) (string, error) {
	if vm.detached {
		return "", ErrDetached
	}
	if len(args) > protocolArgs {
		return "", fmt.Errorf("command %s: too many arguments", cmd)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", vm.socketPath)
	if err != nil {
		return "", fmt.Errorf("connect to attach listener: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(encodeRequest(cmd, args...)); err != nil {
		return "", fmt.Errorf("send %s: %w", cmd, err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read %s reply: %w", cmd, err)
	}
	vm.logger.Debug("attach command", "pid", vm.pid, "cmd", cmd, "bytes", len(reply))
	return parseReply(cmd, reply)
}

// encodeRequest frames a command as <version>\0<cmd>\0<arg1>\0<arg2>\0<arg3>\0.
// Missing arguments are sent empty.
func encodeRequest(cmd string, args ...string) []byte {
	var b bytes.Buffer
	b.WriteString(protocolVersion)
	b.WriteByte(0)
	b.WriteString(cmd)
	b.WriteByte(0)
	for i := 0; i < protocolArgs; i++ {
		if i < len(args) {
			b.WriteString(args[i])
		}
		b.WriteByte(0)
	}
	return b.Bytes()
}

// parseReply splits the status line from the body. A non-zero status is an
// error carrying the body text.
func parseReply(cmd string, reply []byte) (string, error) {
	statusLine, body, _ := strings.Cut(string(reply), "\n")
	status, err := strconv.Atoi(strings.TrimSpace(statusLine))
	if err != nil {
		return "", fmt.Errorf("command %s: malformed reply status %q", cmd, statusLine)
	}
	if status != 0 {
		msg := strings.TrimSpace(body)
		if msg == "" {
			msg = "no detail"
		}
		return "", fmt.Errorf("command %s failed with status %d: %s", cmd, status, msg)
	}
	return body, nil
}

// checkLoadResult inspects the agent's return code. Older JVMs print a bare
// integer, newer ones "return code: N". An empty reply means the target
// never answered, and any other text is a rejection message.
func checkLoadResult(body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return errors.New("agent load: target VM did not respond")
	}
	first, _, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(first, "return code:")))
	if err != nil {
		return fmt.Errorf("agent load failed: %s", trimmed)
	}
	if code != 0 {
		return fmt.Errorf("agent load returned code %d: %s", code, trimmed)
	}
	return nil
}

// parseProperties reads the java.util.Properties text format.
func parseProperties(text string) map[string]string {
	props := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var logical strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if logical.Len() == 0 {
			trimmed := strings.TrimLeft(line, " \t\f")
			if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
				continue
			}
			line = trimmed
		} else {
			line = strings.TrimLeft(line, " \t\f")
		}
		if continued(line) {
			logical.WriteString(line[:len(line)-1])
			continue
		}
		logical.WriteString(line)
		key, value := splitProperty(logical.String())
		props[key] = value
		logical.Reset()
	}
	if logical.Len() > 0 {
		key, value := splitProperty(logical.String())
		props[key] = value
	}
	return props
}

// continued reports whether line ends in an odd number of backslashes.
func continued(line string) bool {
	n := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func splitProperty(line string) (string, string) {
	keyEnd := len(line)
	valueStart := len(line)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' {
			i++
			continue
		}
		if c == '=' || c == ':' || c == ' ' || c == '\t' || c == '\f' {
			keyEnd = i
			valueStart = i + 1
			break
		}
	}
	// A separator may be surrounded by whitespace: "key = value".
	rest := strings.TrimLeft(line[valueStart:], " \t\f")
	if keyEnd < len(line) && (line[keyEnd] == ' ' || line[keyEnd] == '\t' || line[keyEnd] == '\f') {
		if rest != "" && (rest[0] == '=' || rest[0] == ':') {
			rest = strings.TrimLeft(rest[1:], " \t\f")
		}
	}
	return unescapeProperty(line[:keyEnd]), unescapeProperty(rest)
}

func unescapeProperty(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 < len(s) {
				if r, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(r))
					i += 4
					continue
				}
			}
			b.WriteByte('u')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// parseNSpid returns the innermost namespace pid from /proc/<pid>/status
// content, or "" when the NSpid line is absent.
func parseNSpid(status string) string {
	for _, line := range strings.Split(status, "\n") {
		rest, ok := strings.CutPrefix(line, "NSpid:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return ""
		}
		last := fields[len(fields)-1]
		if _, err := strconv.Atoi(last); err != nil {
			return ""
		}
		return last
	}
	return ""
}

func socketPath(tmpDir, nspid string) string {
	return filepath.Join(tmpDir, socketPrefix+nspid)
}

func isSocket(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode()&os.ModeSocket != 0
}
