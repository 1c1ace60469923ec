//go:build windows

package termbridge

import "os"

// killProcessGroup terminates p. Windows has no process groups to signal.
func killProcessGroup(p *os.Process) error {
	return p.Kill()
}

func hangupProcessGroup(p *os.Process) {
	p.Kill()
}
