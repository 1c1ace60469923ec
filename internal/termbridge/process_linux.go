package termbridge

import (
	"errors"

	"golang.org/x/sys/unix"
)

// waitExited blocks until the child pid has exited, leaving it unreaped. It
// reports false if that could not be established.
func waitExited(pid int) bool {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == nil {
			return true
		}
		if !errors.Is(err, unix.EINTR) {
			return false
		}
	}
}
