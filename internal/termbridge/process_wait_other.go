//go:build !linux

package termbridge

// waitExited is unsupported here; the caller reaps without holding off
// signals.
func waitExited(pid int) bool { return false }
