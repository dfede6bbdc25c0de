//go:build !windows

package attach

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"
)

const (
	pollStep    = 20 * time.Millisecond
	maxPollStep = 500 * time.Millisecond
)

// AttachPID opens a handle on pid, starting the attach listener first when
// its socket does not exist yet.
//
// The lookup follows the JVM's own rules for where the listener lives:
//  1. The target must exist and be signalable by us
//  2. Inside a container the JVM names its socket after its namespace PID
//  3. The socket sits in the target's /tmp, reached through /proc/<pid>/root
//  4. Without a socket, the listener is started with the trigger-file handshake
//
// The returned handle opens a fresh connection per command, so no socket
// is held between calls.
func (p *HotSpotProvider) AttachPID(ctx context.Context, pid int) (VirtualMachine, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid process id %d", pid)
	}

	// Step 1: signal 0 checks existence and permission without side effects.
	if err := checkProcess(pid); err != nil {
		return nil, err
	}

	// Steps 2 and 3: resolve the socket path as the target sees it.
	nspid := p.namespacePID(pid)
	tmpDir := p.targetTmpDir(pid)
	sock := socketPath(tmpDir, nspid)

	// Step 4: a JVM starts its attach listener lazily, on first request.
	if !isSocket(sock) {
		if err := p.startListener(ctx, pid, nspid, tmpDir, sock); err != nil {
			return nil, err
		}
	}
	p.logger.Debug("attach listener ready", "pid", pid, "socket", sock)
	return newHotSpotVM(pid, sock, p.logger), nil
}

// checkProcess checks pid with signal 0.
func checkProcess(pid int) error {
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ESRCH):
		return fmt.Errorf("no such process %d", pid)
	case errors.Is(err, syscall.EPERM):
		return fmt.Errorf("not permitted to signal process %d: %w", pid, err)
	default:
		return fmt.Errorf("check process %d: %w", pid, err)
	}
}

// namespacePID maps pid to the id the target sees inside its own pid
// namespace. The listener names its socket after that id.
func (p *HotSpotProvider) namespacePID(pid int) string {
	if runtime.GOOS == "linux" {
		data, err := os.ReadFile(filepath.Join(p.procRoot, strconv.Itoa(pid), "status"))
		if err == nil {
			if nspid := parseNSpid(string(data)); nspid != "" {
				return nspid
			}
		}
	}
	return strconv.Itoa(pid)
}

// targetTmpDir returns the temporary directory as seen by the target, which
// differs from ours when it runs in another mount namespace.
func (p *HotSpotProvider) targetTmpDir(pid int) string {
	if p.tmpDir != "" {
		return p.tmpDir
	}
	if runtime.GOOS == "linux" {
		dir := filepath.Join(p.procRoot, strconv.Itoa(pid), "root", "tmp")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		return "/tmp"
	}
	return os.TempDir()
}

// startListener creates the trigger file and sends SIGQUIT; the JVM checks
// for the file when handling the signal and opens its listener socket.
func (p *HotSpotProvider) startListener(ctx context.Context, pid int, nspid, tmpDir, sock string) error {
	// The trigger file tells the JVM's SIGQUIT handler that this is an
	// attach request rather than a thread dump request.
	trigger, err := p.createTrigger(pid, nspid, tmpDir)
	if err != nil {
		return err
	}
	// The JVM only reads the file while handling the signal, so it can go
	// as soon as the socket shows up or the wait is abandoned.
	defer os.Remove(trigger)

	if err := syscall.Kill(pid, syscall.SIGQUIT); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	timeout := p.AttachTimeout
	if timeout <= 0 {
		timeout = DefaultAttachTimeout
	}
	// Poll with a growing delay: a healthy JVM answers within tens of
	// milliseconds, a busy one (GC, safepoint) may take seconds.
	deadline := time.Now().Add(timeout)
	step := pollStep
	for !isSocket(sock) {
		if time.Now().After(deadline) {
			return fmt.Errorf("attach listener of process %d did not start within %s (socket %s)", pid, timeout, sock)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
		if step < maxPollStep {
			step += pollStep
		}
	}
	return nil
}

func (p *HotSpotProvider) createTrigger(pid int, nspid, tmpDir string) (string, error) {
	candidates := []string{
		filepath.Join(p.procRoot, strconv.Itoa(pid), "cwd", triggerPrefix+nspid),
		filepath.Join(tmpDir, triggerPrefix+nspid),
	}
	var lastErr error
	for _, path := range candidates {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o660)
		if err != nil {
			lastErr = err
			continue
		}
		_ = f.Close()
		return path, nil
	}
	return "", fmt.Errorf("create attach trigger file: %w", lastErr)
}
