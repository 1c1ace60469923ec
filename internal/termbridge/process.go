package termbridge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
)

// ErrProcessExited is returned when writing to a process that has ended.
var ErrProcessExited = errors.New("process has exited")

// SpawnError reports that the session command could not be started.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Size is a terminal size in character cells.
type Size struct {
	Cols uint16
	Rows uint16
}

// Process is a child process attached to a pseudo-terminal. The child leads
// its own session, so Kill reaches everything it started on the terminal.
type Process struct {
	cmd    *exec.Cmd
	pty    *os.File
	exited chan struct{}
	code   int

	// sigMu orders group signals against the reap: once reaped is set the
	// pid may belong to another process and nothing is signalled.
	sigMu  sync.Mutex
	reaped bool

	closed    atomic.Bool
	closeOnce sync.Once
}

// Spawn starts c on a new pseudo-terminal of the given size.
func Spawn(c Command, size Size) (*Process, error) {
	if c.Program == "" {
		return nil, &SpawnError{Program: c.Program, Err: errors.New("empty program")}
	}

	cmd := exec.Command(c.Program, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
	if err != nil {
		return nil, &SpawnError{Program: c.Program, Err: err}
	}

	p := &Process{
		cmd:    cmd,
		pty:    ptmx,
		exited: make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	var err error
	if waitExited(p.cmd.Process.Pid) {
		// The child is a zombie, so its pid and process group stay reserved
		// until Wait reaps it under sigMu.
		p.sigMu.Lock()
		p.reaped = true
		err = p.cmd.Wait()
		p.sigMu.Unlock()
	} else {
		err = p.cmd.Wait()
		p.sigMu.Lock()
		p.reaped = true
		p.sigMu.Unlock()
	}

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	p.code = code
	close(p.exited)
}

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Output returns the terminal's output stream. Reads fail once the process
// has exited and its output is drained, or after Close.
func (p *Process) Output() io.Reader { return p.pty }

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// HasExited reports whether the process has been reaped.
func (p *Process) HasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit status, or -1 if the process was killed by a
// signal. Only meaningful after Exited is closed.
func (p *Process) ExitCode() int {
	<-p.exited
	return p.code
}

// Write sends input to the terminal.
func (p *Process) Write(b []byte) (int, error) {
	if p.HasExited() || p.closed.Load() {
		return 0, ErrProcessExited
	}
	n, err := p.pty.Write(b)
	if err != nil && (p.HasExited() || p.closed.Load() || errors.Is(err, os.ErrClosed)) {
		return n, ErrProcessExited
	}
	return n, err
}

// Resize changes the terminal size. It does nothing once the process has
// exited or the terminal is closed.
func (p *Process) Resize(size Size) error {
	if size.Cols == 0 || size.Rows == 0 {
		return nil
	}
	if p.HasExited() || p.closed.Load() {
		return nil
	}
	err := pty.Setsize(p.pty, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
	if err != nil && (p.HasExited() || p.closed.Load()) {
		return nil
	}
	return err
}

// Kill terminates the process group immediately.
func (p *Process) Kill() error {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	if p.reaped {
		return nil
	}
	return killProcessGroup(p.cmd.Process)
}

func (p *Process) hangup() {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	if !p.reaped {
		hangupProcessGroup(p.cmd.Process)
	}
}

// Terminate hangs up the terminal's process group, then kills it if it has
// not exited within grace. It returns once the process is reaped or the
// kill has been sent and a further grace period has passed.
func (p *Process) Terminate(grace time.Duration) {
	if p.HasExited() {
		return
	}
	p.hangup()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.exited:
		return
	case <-timer.C:
	}

	p.Kill()
	timer.Reset(grace)
	select {
	case <-p.exited:
	case <-timer.C:
	}
}

// Close releases the terminal. Safe to call more than once.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		err = p.pty.Close()
	})
	return err
}
