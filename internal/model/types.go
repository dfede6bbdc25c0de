package model

import (
	"errors"
	"fmt"
)

// DescriptorSource tells where a Descriptor was discovered.
type DescriptorSource string

const (
	// SourcePerfData marks a JVM found through its hsperfdata file, the same
	// mechanism the JDK uses to list attachable virtual machines.
	SourcePerfData DescriptorSource = "hsperfdata"

	// SourceProcessTable marks a JVM found by scanning the OS process table.
	SourceProcessTable DescriptorSource = "process-table"
)

// String returns the string representation of DescriptorSource.
func (s DescriptorSource) String() string {
	return string(s)
}

// Descriptor is the external identity of a running JVM. It is owned by the
// operating system; the launcher only reads it.
type Descriptor struct {
	// ID is the textual process identifier used to match the target.
	ID string `json:"id"`

	// PID is the numeric process identifier.
	PID int `json:"pid"`

	// DisplayName is the main class or jar of the JVM when known.
	DisplayName string `json:"displayName,omitempty"`

	// Source is how the descriptor was discovered.
	Source DescriptorSource `json:"source"`
}

// Sentinel errors of the error taxonomy. Typed errors below match them with
// errors.Is, so callers can branch on the category and still read the
// context fields with errors.As.
var (
	// ErrPortExhausted means no free port was found within the attempt bound.
	ErrPortExhausted = errors.New("port exhausted")

	// ErrInvalidPortRange means the requested range is empty or outside 0-65535.
	ErrInvalidPortRange = errors.New("invalid port range")

	// ErrAttachFailed means the target process is unreachable or not attachable.
	ErrAttachFailed = errors.New("attach failed")

	// ErrInjectionFailed means the target rejected the agent or its bootstrap
	// code failed.
	ErrInjectionFailed = errors.New("injection failed")
)

// PortExhaustedError reports a bounded port search that found nothing.
type PortExhaustedError struct {
	Min      int
	Max      int
	Attempts int
}

func (e *PortExhaustedError) Error() string {
	return fmt.Sprintf("could not find an available tcp port in the range [%d, %d] after %d attempts",
		e.Min, e.Max, e.Attempts)
}

// Is makes errors.Is(err, ErrPortExhausted) true.
func (e *PortExhaustedError) Is(target error) bool {
	return target == ErrPortExhausted
}

// AttachError reports that no attachment handle could be opened.
type AttachError struct {
	PID int
	Err error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach to process %d failed: %v", e.PID, e.Err)
}

// Unwrap returns the underlying error.
func (e *AttachError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAttachFailed) true.
func (e *AttachError) Is(target error) bool {
	return target == ErrAttachFailed
}

// InjectionError reports that the target rejected the agent load or that
// the agent bootstrap raised an error.
type InjectionError struct {
	PID int
	Err error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("inject agent into process %d failed: %v", e.PID, e.Err)
}

// Unwrap returns the underlying error.
func (e *InjectionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInjectionFailed) true.
func (e *InjectionError) Is(target error) bool {
	return target == ErrInjectionFailed
}

// ExitCode defines the CLI exit codes. Scripts wrapping the launcher use
// them to tell failure categories apart.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidInput indicates invalid flags or configuration.
	ExitInvalidInput ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while resolving --container.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortAllocationFailed indicates no usable port was found, or the
	// configured port is held by a different process.
	ExitPortAllocationFailed ExitCode = 4

	// ExitAttachFailed indicates the target process could not be attached.
	ExitAttachFailed ExitCode = 5

	// ExitInjectionFailed indicates the agent could not be loaded.
	ExitInjectionFailed ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
