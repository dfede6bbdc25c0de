// Package shell runs external commands and returns their captured output
// as lines.
//
// The launcher treats command execution as a black box: callers get the
// stdout lines of a finished command, or an error describing why it did not
// finish cleanly. Parsing of the output is left to the caller.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a command and returns its stdout split into lines.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]string, error)
}

// ExecRunner is the Runner backed by os/exec.
//
// It is stateless; the struct exists so callers depend on the Runner
// interface and tests can substitute a fake.
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes name with args and waits for it to finish.
//
// No timeout is imposed here: a hung command blocks until ctx is cancelled.
// On a non-zero exit the returned error includes the trimmed stderr output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]string, error) {
	// #nosec G204 -- command names are fixed by callers, never user input
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("%s %s failed", name, strings.Join(args, " "))
		if stderrStr := strings.TrimSpace(stderr.String()); stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return nil, fmt.Errorf("%s: %w", message, err)
	}

	return SplitLines(stdout.String()), nil
}

// SplitLines splits command output into lines. Windows line endings are
// normalized and a trailing empty line is dropped.
func SplitLines(output string) []string {
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return nil
	}
	return strings.Split(output, "\n")
}

// FirstLine runs the command and returns its first non-blank line, trimmed.
// It returns "" when the command printed nothing.
func FirstLine(ctx context.Context, r Runner, name string, args ...string) (string, error) {
	lines, err := r.Run(ctx, name, args...)
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed, nil
		}
	}
	return "", nil
}
