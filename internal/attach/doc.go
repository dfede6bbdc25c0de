// Package attach locates a running JVM, opens an attachment handle to it,
// and asks it to load the diagnostic agent.
//
// The Orchestrator drives one attach sequence:
//
//	Idle -> Located -> Attached -> Injected -> Detached
//
// with Failed reachable from any non-terminal state. Once a handle is open
// it is released on every exit path, success or failure, and a successful
// release is recorded as Detached even after Failed.
//
// The HotSpot provider speaks the JVM dynamic attach protocol over the
// attach listener's UNIX socket, the same channel `jcmd` uses.
package attach
