// Package model defines the domain types and value objects for the
// diag-attach launcher.
//
// This package contains pure data structures with no external dependencies:
// the attach Configuration handed to the injected agent, the Descriptor of a
// running JVM, and the error taxonomy shared by the port resolver and the
// attach orchestrator.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
