package termbridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gluk-w/termbridge/internal/logging"
	"golang.org/x/crypto/ssh"
)

const (
	credentialSuffix = ".key"
	// credentialDirPrefix names the private key directory of one server
	// process inside the shared parent directory.
	credentialDirPrefix = "keys-"
)

// CredentialWriteError reports that an ephemeral key could not be written.
// The session is aborted before anything is spawned.
type CredentialWriteError struct {
	Dir string
	Err error
}

func (e *CredentialWriteError) Error() string {
	return fmt.Sprintf("write credential in %s: %v", e.Dir, e.Err)
}

func (e *CredentialWriteError) Unwrap() error { return e.Err }

// CredentialStore writes private keys to owner-only files for the lifetime of
// one session. Every path returned by Materialize must be passed to Destroy.
type CredentialStore struct {
	dir string
	seq atomic.Uint64
	log *log.Logger
}

// NewCredentialStore returns a store rooted at dir. The directory is created
// lazily with mode 0700.
func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{
		dir: filepath.Clean(dir),
		log: logging.For("credentials"),
	}
}

// Dir returns the directory holding ephemeral keys.
func (cs *CredentialStore) Dir() string { return cs.dir }

// Materialize writes key to a new file named after sessionID and returns its
// path. Names never collide: each call takes a fresh sequence number and a
// random suffix.
func (cs *CredentialStore) Materialize(sessionID, key string) (string, error) {
	if err := os.MkdirAll(cs.dir, 0700); err != nil {
		return "", &CredentialWriteError{Dir: cs.dir, Err: err}
	}
	if err := os.Chmod(cs.dir, 0700); err != nil {
		return "", &CredentialWriteError{Dir: cs.dir, Err: err}
	}

	prefix := safeName(sessionID) + "-" + strconv.FormatUint(cs.seq.Add(1), 10) + "-"
	f, err := os.CreateTemp(cs.dir, prefix+"*"+credentialSuffix)
	if err != nil {
		return "", &CredentialWriteError{Dir: cs.dir, Err: err}
	}
	path := f.Name()

	data := normalizeKey(key)
	werr := f.Chmod(0600)
	if werr == nil {
		_, werr = f.Write(data)
	}
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return "", &CredentialWriteError{Dir: cs.dir, Err: werr}
	}

	if fp := keyFingerprint(data); fp != "" {
		cs.log.Debug("credential written", "session", sessionID, "fingerprint", fp)
	} else {
		cs.log.Warn("credential written but key could not be parsed", "session", sessionID)
	}
	return path, nil
}

// Destroy removes a file written by Materialize. Empty paths and files that
// are already gone are not errors.
func (cs *CredentialStore) Destroy(path string) error {
	if path == "" {
		return nil
	}
	clean := filepath.Clean(path)
	if filepath.Dir(clean) != cs.dir {
		return fmt.Errorf("refusing to remove %s: outside credential dir %s", clean, cs.dir)
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// Sweep removes key files older than minAge that no live session owns, such
// as those left by a crashed process. minAge keeps a key that is being
// handed to a starting session safe. It returns the number of files removed.
func (cs *CredentialStore) Sweep(isLive func(path string) bool, minAge time.Duration) (int, error) {
	entries, err := os.ReadDir(cs.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read credential dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), credentialSuffix) {
			continue
		}
		path := filepath.Join(cs.dir, e.Name())
		if isLive != nil && isLive(path) {
			continue
		}
		if minAge > 0 {
			info, err := e.Info()
			if err != nil || time.Since(info.ModTime()) < minAge {
				continue
			}
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			cs.log.Warn("sweep: remove failed", "path", path, "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		cs.log.Info("swept orphaned credentials", "count", removed)
	}
	return removed, nil
}

// Touch marks the directory as in use. Servers sharing a parent directory
// treat a private directory that has not been touched for a while as left by
// a dead process.
func (cs *CredentialStore) Touch() error {
	now := time.Now()
	if err := os.Chtimes(cs.dir, now, now); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("touch credential dir: %w", err)
	}
	return nil
}

// Release removes every key file and then the directory itself. Only call it
// once no session can hold a key.
func (cs *CredentialStore) Release() error {
	if _, err := cs.Sweep(nil, 0); err != nil {
		return err
	}
	if err := os.Remove(cs.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential dir: %w", err)
	}
	return nil
}

// PrivateCredentialDir creates a directory for one server process's keys
// under base. Each process gets its own, so a second server sweeping at
// startup never sees another server's live keys.
func PrivateCredentialDir(base string) (string, error) {
	if err := os.MkdirAll(base, 0700); err != nil {
		return "", fmt.Errorf("create credential parent dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, credentialDirPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create credential dir: %w", err)
	}
	return dir, nil
}

// SweepStaleCredentialDirs removes private key directories under base that
// have not been touched for maxIdle, along with any keys in them. keep is
// never removed. It returns the number of directories removed.
func SweepStaleCredentialDirs(base, keep string, maxIdle time.Duration) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read credential parent dir: %w", err)
	}

	lg := logging.For("credentials")
	keep = filepath.Clean(keep)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), credentialDirPrefix) {
			continue
		}
		path := filepath.Join(base, e.Name())
		if path == keep {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) < maxIdle {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			lg.Warn("sweep: remove stale dir failed", "path", path, "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		lg.Info("removed credential dirs of stopped servers", "count", removed)
	}
	return removed, nil
}

// normalizeKey converts CRLF line endings and ensures a trailing newline;
// OpenSSH refuses PEM keys without one.
func normalizeKey(key string) []byte {
	key = strings.ReplaceAll(key, "\r\n", "\n")
	key = strings.TrimSpace(key) + "\n"
	return []byte(key)
}

func keyFingerprint(pem []byte) string {
	signer, err := ssh.ParsePrivateKey(pem)
	if err == nil {
		return ssh.FingerprintSHA256(signer.PublicKey())
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && missing.PublicKey != nil {
		return ssh.FingerprintSHA256(missing.PublicKey)
	}
	return ""
}

// safeName keeps only characters that are safe in a file name.
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
	if len(s) > 48 {
		s = s[:48]
	}
	if s == "" {
		s = "session"
	}
	return s
}
