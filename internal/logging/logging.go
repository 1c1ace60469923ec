package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gluk-w/termbridge/internal/config"
)

var (
	logFile *os.File
	mu      sync.Mutex
	out     = &switchWriter{w: os.Stderr}
	root    = log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
)

// switchWriter lets Init redirect loggers that were derived from root
// before the log file was opened.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

// Init sets up dual logging to stdout and the configured log file.
// Must be called after config.Load().
func Init() {
	if lvl, err := log.ParseLevel(config.Cfg.LogLevel); err == nil {
		root.SetLevel(lvl)
	} else {
		root.Warn("unknown log level, using info", "level", config.Cfg.LogLevel)
	}
	log.SetDefault(root)

	path := config.Cfg.LogPath
	if path == "" {
		out.set(os.Stdout)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		root.Warn("cannot create log directory", "err", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		root.Warn("cannot open log file", "path", path, "err", err)
		return
	}

	mu.Lock()
	logFile = f
	mu.Unlock()
	out.set(io.MultiWriter(os.Stdout, f))
	root.Info("logging to file", "path", path)
}

// For returns a logger tagged with the given component prefix. Call it after
// Init so the level applies.
func For(prefix string) *log.Logger {
	return root.WithPrefix(prefix)
}

// Close flushes and closes the log file, if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	out.set(os.Stdout)
	err := logFile.Close()
	logFile = nil
	return err
}

// ReadTail returns the last n lines from the log file.
func ReadTail(n int) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(config.Cfg.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}

	return strings.Join(lines, "\n"), nil
}

// Sanitize strips newlines and control characters from user-provided
// strings so they cannot forge log entries.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r < 32 || r == 127:
			return -1
		}
		return r
	}, s)
}
