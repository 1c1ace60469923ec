//go:build !windows

package termbridge

// DefaultShell is the program spawned for local sessions.
const DefaultShell = "/bin/bash"
