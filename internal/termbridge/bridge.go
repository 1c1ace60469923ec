package termbridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gluk-w/termbridge/internal/logging"
	"github.com/gluk-w/termbridge/internal/metrics"
)

// ErrSessionClosed is returned by StartSession when the session was torn
// down by another trigger before its process could be attached.
var ErrSessionClosed = errors.New("session closed during start")

const (
	DefaultKillGrace  = time.Second
	DefaultDrainGrace = 500 * time.Millisecond
)

// SpawnConfig is the working directory and environment given to every
// spawned process.
type SpawnConfig struct {
	Dir string
	Env []string
}

// NewSpawnConfig snapshots the server environment with TERM set for an xterm
// compatible client. home overrides the working directory; when empty the
// server user's home directory is used.
func NewSpawnConfig(home string) SpawnConfig {
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}
	env := make([]string, 0, len(os.Environ())+1)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "TERM=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "TERM=xterm-256color")
	return SpawnConfig{Dir: home, Env: env}
}

// Config configures a Bridge.
type Config struct {
	Command CommandOptions
	Spawn   SpawnConfig
	// CredentialDir holds this bridge's ephemeral keys and nothing else; see
	// PrivateCredentialDir. When empty a private directory under the system
	// temp dir is created.
	CredentialDir string
	// KillGrace is how long a hung-up process gets before SIGKILL.
	KillGrace time.Duration
	// DrainGrace bounds how long output is relayed after the process exits.
	DrainGrace time.Duration
}

// InitRequest asks for a session on a connection. A nil Descriptor selects
// the local shell.
type InitRequest struct {
	ConnectionID string
	Descriptor   *Descriptor
	Cols         int
	Rows         int
}

// Bridge owns the session registry and the credential store and turns init
// requests into running sessions.
type Bridge struct {
	cfg      Config
	creds    *CredentialStore
	registry *Registry
	spawn    func(Command, Size) (*Process, error)
	log      *log.Logger
}

// New returns a Bridge. Zero grace periods take their defaults.
func New(cfg Config) *Bridge {
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = DefaultDrainGrace
	}
	if cfg.CredentialDir == "" {
		dir, err := PrivateCredentialDir(filepath.Join(os.TempDir(), "termbridge-keys"))
		if err != nil {
			dir = filepath.Join(os.TempDir(), "termbridge-keys-"+strconv.Itoa(os.Getpid()))
		}
		cfg.CredentialDir = dir
	}
	return &Bridge{
		cfg:      cfg,
		creds:    NewCredentialStore(cfg.CredentialDir),
		registry: NewRegistry(),
		spawn:    Spawn,
		log:      logging.For("bridge"),
	}
}

// Registry exposes the live sessions.
func (b *Bridge) Registry() *Registry { return b.registry }

// Credentials exposes the credential store.
func (b *Bridge) Credentials() *CredentialStore { return b.creds }

// StartSession handles term.init. An invalid descriptor is rejected before
// the registry is touched, so an existing session on the connection keeps
// running. Otherwise any previous session is torn down first, the key is
// written, the command is spawned and relaying begins. Failures are reported
// to the client as terminal text. After CloseAll every request fails with
// ErrBridgeClosed.
func (b *Bridge) StartSession(ctx context.Context, req InitRequest, client Client) (*Session, error) {
	d := Descriptor{Protocol: ProtocolNone}
	if req.Descriptor != nil {
		d = *req.Descriptor
	}
	nd, err := d.Normalize()
	if err != nil {
		b.log.Warn("rejected init", "connection", logging.Sanitize(req.ConnectionID), "err", err)
		b.diagnose(ctx, client, err.Error())
		return nil, err
	}

	s := newSession(ctx, b, req.ConnectionID, nd, ClampSize(req.Cols, req.Rows))
	prev, err := b.registry.Create(s)
	if err != nil {
		s.cancel()
		b.log.Warn("rejected init during shutdown", "connection", logging.Sanitize(req.ConnectionID))
		b.diagnose(ctx, client, "server is shutting down")
		return nil, err
	}
	if prev != nil {
		prev.teardown(ReasonReplaced)
	}
	metrics.LiveSessions.Set(float64(b.registry.Len()))

	var keyPath string
	if nd.HasKey() {
		path, err := b.creds.Materialize(req.ConnectionID, nd.PrivateKey)
		if err != nil {
			metrics.CredentialFailures.Inc()
			s.log.Error("credential write failed", "err", err)
			b.diagnose(ctx, client, "could not prepare the private key; connection aborted")
			s.teardown(ReasonCredentialFailed)
			return nil, err
		}
		if !s.attachCredential(path) {
			b.creds.Destroy(path)
			return nil, ErrSessionClosed
		}
		keyPath = path
	}

	cmd := BuildCommand(nd, keyPath, b.cfg.Command)
	cmd.Dir = b.cfg.Spawn.Dir
	cmd.Env = b.cfg.Spawn.Env

	size := s.Size()
	s.log.Info("starting session", "program", cmd.Program, "target", logging.Sanitize(nd.Target()),
		"cols", size.Cols, "rows", size.Rows)

	proc, err := b.spawn(cmd, size)
	if err != nil {
		metrics.SpawnFailures.Inc()
		s.log.Error("spawn failed", "err", err)
		b.diagnose(ctx, client, err.Error())
		s.teardown(ReasonSpawnFailed)
		return nil, err
	}
	if !s.attachProcess(proc) {
		proc.Terminate(b.cfg.KillGrace)
		proc.Close()
		return nil, ErrSessionClosed
	}

	metrics.SessionsStarted.WithLabelValues(string(nd.Protocol)).Inc()
	s.start(proc, client)
	return s, nil
}

// Diagnostic formats msg as a line of terminal output.
func Diagnostic(msg string) []byte {
	return []byte("\r\n[termbridge] " + msg + "\r\n")
}

func (b *Bridge) diagnose(ctx context.Context, client Client, msg string) {
	if err := client.SendOutput(ctx, Diagnostic(msg)); err != nil {
		b.log.Debug("diagnostic not delivered", "err", err)
	}
}

// Input forwards raw input to the connection's session, if any.
func (b *Bridge) Input(connectionID string, data []byte) {
	if s := b.registry.Get(connectionID); s != nil {
		s.WriteInput(data)
	}
}

// Resize forwards new dimensions to the connection's session, if any.
func (b *Bridge) Resize(connectionID string, cols, rows int) {
	if s := b.registry.Get(connectionID); s != nil {
		s.Resize(cols, rows)
	}
}

// Disconnect tears down the connection's session after its channel closed.
func (b *Bridge) Disconnect(connectionID string) {
	if s := b.registry.Get(connectionID); s != nil {
		s.teardown(ReasonDisconnect)
	}
}

// Close ends a session on behalf of an operator. It reports whether a
// session was found.
func (b *Bridge) Close(connectionID string) bool {
	s := b.registry.Get(connectionID)
	if s == nil {
		return false
	}
	s.teardown(ReasonClosed)
	return true
}

// Sessions returns a snapshot of the live sessions, oldest first.
func (b *Bridge) Sessions() []SessionInfo {
	list := b.registry.List()
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	return out
}

// CloseAll stops new sessions from starting, tears down every live one in
// parallel and waits for them, then removes the credential directory. Safe
// to call more than once.
func (b *Bridge) CloseAll() {
	sessions := b.registry.Close()
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.teardown(ReasonShutdown)
		}(s)
	}
	wg.Wait()
	if len(sessions) > 0 {
		b.log.Info("closed all sessions", "count", len(sessions))
	}
	if err := b.creds.Release(); err != nil {
		b.log.Warn("credential dir not removed", "dir", b.creds.Dir(), "err", err)
	}
}

// Sweep removes key files older than minAge that no live session holds and
// marks the credential directory as in use.
func (b *Bridge) Sweep(minAge time.Duration) (int, error) {
	if err := b.creds.Touch(); err != nil {
		b.log.Debug("credential dir heartbeat failed", "err", err)
	}
	n, err := b.creds.Sweep(b.registry.OwnsCredential, minAge)
	if n > 0 {
		metrics.CredentialsSwept.Add(float64(n))
	}
	return n, err
}
