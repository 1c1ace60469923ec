//go:build !windows

package termbridge

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// killProcessGroup sends SIGKILL to the process group led by p.
func killProcessGroup(p *os.Process) error {
	err := unix.Kill(-p.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	if err != nil {
		return p.Kill()
	}
	return nil
}

// hangupProcessGroup sends SIGHUP to the process group led by p, as a
// terminal hangup would.
func hangupProcessGroup(p *os.Process) {
	if err := unix.Kill(-p.Pid, unix.SIGHUP); err != nil && !errors.Is(err, unix.ESRCH) {
		p.Signal(unix.SIGHUP)
	}
}
