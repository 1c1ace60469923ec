package termbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gluk-w/termbridge/internal/logging"
	"github.com/gluk-w/termbridge/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	outputChunkSize = 32 * 1024
	inputQueueSize  = 64
)

// Client is the browser side of a session. Implementations must be safe for
// concurrent use; a replaced session may still be sending while its successor
// starts. A cancelled ctx means the session is gone and nothing should be
// written.
type Client interface {
	SendOutput(ctx context.Context, b []byte) error
	SendExit(ctx context.Context, code int) error
}

// SessionState is the lifecycle stage of a session.
type SessionState int32

const (
	// StateActive: the session accepts input and relays output.
	StateActive SessionState = iota
	// StateTearingDown: the first teardown is releasing the process and key.
	StateTearingDown
	// StateGone: everything is released and Done is closed.
	StateGone
)

// String returns the state name used in logs and the sessions API.
func (s SessionState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTearingDown:
		return "tearing-down"
	case StateGone:
		return "gone"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TeardownReason records what ended a session.
type TeardownReason string

const (
	ReasonDisconnect       TeardownReason = "disconnect"        // client channel closed
	ReasonExit             TeardownReason = "exit"              // process ended on its own
	ReasonSpawnFailed      TeardownReason = "spawn_failed"      // command could not start
	ReasonCredentialFailed TeardownReason = "credential_failed" // key file could not be written
	ReasonClientError      TeardownReason = "client_error"      // output could not be delivered
	ReasonReplaced         TeardownReason = "replaced"          // a new term.init on the connection
	ReasonShutdown         TeardownReason = "shutdown"          // CloseAll
	ReasonClosed           TeardownReason = "closed"            // operator close
)

// Session is one terminal attached to one client connection.
type Session struct {
	ConnectionID string
	ID           string
	Protocol     Protocol
	Target       string
	CreatedAt    time.Time

	bridge *Bridge
	log    *log.Logger
	ctx    context.Context
	cancel context.CancelFunc
	input  chan []byte

	mu             sync.Mutex
	state          SessionState
	proc           *Process
	credentialPath string
	size           Size
	exitCode       int
	exited         bool
	reason         TeardownReason

	done       chan struct{}
	outputDone chan struct{}
}

// SessionInfo is a point-in-time view of a session. It carries no secrets.
type SessionInfo struct {
	ConnectionID string    `json:"connection_id"`
	ID           string    `json:"session_id"`
	Protocol     Protocol  `json:"protocol"`
	Target       string    `json:"target"`
	State        string    `json:"state"`
	Cols         uint16    `json:"cols"`
	Rows         uint16    `json:"rows"`
	Pid          int       `json:"pid,omitempty"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newSession(ctx context.Context, b *Bridge, connectionID string, d Descriptor, size Size) *Session {
	id := uuid.NewString()
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Session{
		ConnectionID: connectionID,
		ID:           id,
		Protocol:     d.Protocol,
		Target:       d.Target(),
		CreatedAt:    time.Now().UTC(),
		bridge:       b,
		log: logging.For("session").With(
			"connection", logging.Sanitize(connectionID),
			"session", id[:8],
		),
		ctx:        sctx,
		cancel:     cancel,
		input:      make(chan []byte, inputQueueSize),
		size:       size,
		done:       make(chan struct{}),
		outputDone: make(chan struct{}),
	}
}

// Done is closed once the session has been fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns what ended the session, or "" while it is active.
func (s *Session) Reason() TeardownReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// CredentialPath returns the ephemeral key file held by the session, if any.
func (s *Session) CredentialPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentialPath
}

// Size returns the current terminal dimensions.
func (s *Session) Size() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Info returns a snapshot for listing; it never includes secrets.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ConnectionID: s.ConnectionID,
		ID:           s.ID,
		Protocol:     s.Protocol,
		Target:       s.Target,
		State:        s.state.String(),
		Cols:         s.size.Cols,
		Rows:         s.size.Rows,
		CreatedAt:    s.CreatedAt,
	}
	if s.proc != nil {
		info.Pid = s.proc.Pid()
	}
	if s.exited {
		code := s.exitCode
		info.ExitCode = &code
	}
	return info
}

// WriteInput queues b for the process and never blocks. Input arriving before
// the process is spawned is delivered once it starts. Input after teardown,
// or while the queue is full because the program is not reading its
// terminal, is dropped and WriteInput returns false. The caller must not
// modify b afterwards.
func (s *Session) WriteInput(b []byte) bool {
	if len(b) == 0 || s.State() != StateActive {
		return false
	}
	select {
	case s.input <- b:
		return true
	default:
		metrics.DroppedMessages.WithLabelValues("backpressure").Inc()
		return false
	}
}

// Resize records new dimensions and applies them to the terminal. Invalid
// sizes are ignored and oversized ones are clamped.
func (s *Session) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	size := ClampSize(cols, rows)

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.size = size
	proc := s.proc
	s.mu.Unlock()

	if proc == nil {
		return
	}
	if err := proc.Resize(size); err != nil {
		s.log.Debug("resize failed", "err", err)
	}
}

// attachCredential records the key file. It returns false if the session was
// torn down meanwhile; the caller then owns the file.
func (s *Session) attachCredential(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.credentialPath = path
	return true
}

// attachProcess records the spawned process. It returns false if the session
// was torn down meanwhile; the caller then owns the process.
func (s *Session) attachProcess(p *Process) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.proc = p
	return true
}

// start runs the relays. Output and input pumps plus the exit watcher share
// one errgroup; a failed send to the client tears the session down.
func (s *Session) start(p *Process, client Client) {
	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error { return s.pumpOutput(ctx, p, client) })
	g.Go(func() error { return s.pumpInput(ctx, p) })
	g.Go(func() error { return s.watchExit(ctx, p, client) })

	go func() {
		if err := g.Wait(); err != nil {
			s.log.Debug("relay stopped", "err", err)
			s.teardown(ReasonClientError)
		}
	}()
}

func (s *Session) pumpOutput(ctx context.Context, p *Process, client Client) error {
	defer close(s.outputDone)

	buf := make([]byte, outputChunkSize)
	out := p.Output()
	for {
		n, err := out.Read(buf)
		if n > 0 {
			if ctx.Err() != nil {
				return nil
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if serr := client.SendOutput(ctx, chunk); serr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send output: %w", serr)
			}
		}
		if err != nil {
			// EIO once the child has exited and the buffer is drained, or
			// ErrClosed after teardown.
			return nil
		}
	}
}

func (s *Session) pumpInput(ctx context.Context, p *Process) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-s.input:
			if _, err := p.Write(b); err != nil && !errors.Is(err, ErrProcessExited) {
				s.log.Debug("input write failed", "err", err)
			}
		}
	}
}

func (s *Session) watchExit(ctx context.Context, p *Process, client Client) error {
	select {
	case <-ctx.Done():
		return nil
	case <-p.Exited():
	}

	timer := time.NewTimer(s.bridge.cfg.DrainGrace)
	defer timer.Stop()
	select {
	case <-s.outputDone:
	case <-timer.C:
		s.log.Debug("output drain timed out")
	case <-ctx.Done():
		return nil
	}

	code := p.ExitCode()
	s.mu.Lock()
	s.exitCode = code
	s.exited = true
	s.mu.Unlock()

	if err := client.SendExit(ctx, code); err != nil {
		s.log.Debug("exit notice not delivered", "err", err)
	}
	s.teardown(ReasonExit)
	return nil
}

// teardown releases everything the session holds. Only the first call does
// any work; it reports whether this call was the one.
func (s *Session) teardown(reason TeardownReason) bool {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return false
	}
	s.state = StateTearingDown
	s.reason = reason
	proc := s.proc
	keyPath := s.credentialPath
	s.mu.Unlock()

	s.cancel()

	if proc != nil {
		proc.Terminate(s.bridge.cfg.KillGrace)
		if err := proc.Close(); err != nil {
			s.log.Debug("close terminal", "err", err)
		}
	}
	if err := s.bridge.creds.Destroy(keyPath); err != nil {
		s.log.Error("failed to remove credential", "err", err)
	}
	s.bridge.registry.Remove(s.ConnectionID, s)

	s.mu.Lock()
	s.state = StateGone
	s.credentialPath = ""
	exitCode, exited := s.exitCode, s.exited
	s.mu.Unlock()
	close(s.done)

	metrics.Teardowns.WithLabelValues(string(reason)).Inc()
	metrics.LiveSessions.Set(float64(s.bridge.registry.Len()))

	if exited {
		s.log.Info("session closed", "reason", reason, "exit_code", exitCode)
	} else {
		s.log.Info("session closed", "reason", reason)
	}
	return true
}
