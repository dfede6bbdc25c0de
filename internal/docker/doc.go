// Package docker resolves attach targets that run inside Docker containers.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Mapping a container ID or name to the host PID of its main process,
//     which is what the attach provider needs
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
