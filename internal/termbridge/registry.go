package termbridge

import (
	"errors"
	"sort"
	"sync"
)

// ErrBridgeClosed is returned when a session is started after shutdown began.
var ErrBridgeClosed = errors.New("terminal bridge is shut down")

// Registry maps connection ids to their live session. All mutations go
// through one mutex, so a disconnect and a process exit racing to tear down
// the same session observe a consistent map.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers s under its connection id and returns the session it
// displaced, if any. The caller must tear the previous session down. After
// Close, nothing is registered and ErrBridgeClosed is returned.
func (r *Registry) Create(s *Session) (previous *Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrBridgeClosed
	}
	previous = r.sessions[s.ConnectionID]
	r.sessions[s.ConnectionID] = s
	return previous, nil
}

// Close stops further registrations and returns the sessions still
// registered, oldest first.
func (r *Registry) Close() []*Session {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.List()
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Get returns the live session for a connection, or nil.
func (r *Registry) Get(connectionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[connectionID]
}

// Remove deletes the entry for connectionID only if it still refers to s, so
// a late teardown of a replaced session never evicts its successor.
func (r *Registry) Remove(connectionID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[connectionID]; ok && cur == s {
		delete(r.sessions, connectionID)
		return true
	}
	return false
}

// List returns the registered sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// OwnsCredential reports whether a registered session holds the key file at
// path.
func (r *Registry) OwnsCredential(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.CredentialPath() == path {
			return true
		}
	}
	return false
}
