package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-connections/tlsconfig"
	"github.com/gluk-w/termbridge/internal/config"
	"github.com/gluk-w/termbridge/internal/crypto"
	"github.com/gluk-w/termbridge/internal/database"
	"github.com/gluk-w/termbridge/internal/handlers"
	"github.com/gluk-w/termbridge/internal/inventory"
	"github.com/gluk-w/termbridge/internal/logging"
	"github.com/gluk-w/termbridge/internal/termbridge"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const (
	// sweepMinAge keeps the periodic sweep away from keys still being handed
	// to a starting session.
	sweepMinAge = time.Minute
	// staleKeyDirAge is how long a server's key directory may go untouched
	// before other servers treat its owner as dead. The heartbeat runs well
	// inside it.
	staleKeyDirAge = 10 * time.Minute
	heartbeatSpec  = "@every 1m"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the terminal bridge server (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Load(); err != nil {
		return err
	}
	logging.Init()
	defer logging.Close()
	lg := logging.For("main")

	if !config.Cfg.AuthDisabled && config.Cfg.AuthTokenHash == "" {
		return errors.New("no API token configured: set TERMBRIDGE_AUTH_TOKEN_HASH (see 'termbridge hash-token') or TERMBRIDGE_AUTH_DISABLED=true")
	}
	if config.Cfg.AuthDisabled {
		lg.Warn("authentication disabled; anyone who can reach the server gets a shell")
	}

	policy, err := termbridge.ParseHostKeyPolicy(config.Cfg.SSHHostKeyPolicy)
	if err != nil {
		return err
	}
	if policy == termbridge.HostKeyInsecure {
		lg.Warn("ssh host key checking is disabled; set TERMBRIDGE_SSH_HOST_KEY_POLICY=accept-new or strict")
	}
	maxInput, err := config.Cfg.MaxInputBytes()
	if err != nil {
		return err
	}

	if err := database.Init(); err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	defer database.Close()
	if err := crypto.EnsureKey(); err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}

	store := inventory.New(database.DB)
	if path := config.Cfg.InventoryFile; path != "" {
		n, err := store.ImportFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		lg.Info("inventory loaded", "path", path, "devices", n)
	}

	keyBase := config.Cfg.CredentialDir
	keyDir, err := termbridge.PrivateCredentialDir(keyBase)
	if err != nil {
		return err
	}

	bridge := termbridge.New(termbridge.Config{
		Command: termbridge.CommandOptions{
			Shell:         config.Cfg.Shell,
			SSHBinary:     config.Cfg.SSHBinary,
			HostKeyPolicy: policy,
		},
		Spawn:         termbridge.NewSpawnConfig(config.Cfg.ShellHome),
		CredentialDir: keyDir,
	})
	defer bridge.CloseAll()
	handlers.TermBridge = bridge
	handlers.Devices = store
	handlers.MaxInputSize = maxInput

	// Directories of servers that died without cleaning up. Running servers
	// keep theirs fresh with the heartbeat below.
	sweepStale := func() {
		n, err := termbridge.SweepStaleCredentialDirs(keyBase, keyDir, staleKeyDirAge)
		if err != nil {
			lg.Warn("stale credential dir sweep failed", "err", err)
		} else if n > 0 {
			lg.Warn("removed credentials left by stopped servers", "dirs", n)
		}
	}
	sweepStale()
	lg.Info("credential dir ready", "dir", keyDir)

	sched := cron.New()
	if _, err := sched.AddFunc(config.Cfg.CredentialSweep, func() {
		if _, err := bridge.Sweep(sweepMinAge); err != nil {
			lg.Warn("credential sweep failed", "err", err)
		}
		sweepStale()
	}); err != nil {
		return fmt.Errorf("invalid TERMBRIDGE_CREDENTIAL_SWEEP %q: %w", config.Cfg.CredentialSweep, err)
	}
	if _, err := sched.AddFunc(heartbeatSpec, func() {
		if err := bridge.Credentials().Touch(); err != nil {
			lg.Warn("credential dir heartbeat failed", "err", err)
		}
	}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:              config.Cfg.ListenAddr,
		Handler:           newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := config.Cfg.TLSCert != "" || config.Cfg.TLSKey != ""
	if useTLS {
		tlsCfg, err := tlsconfig.Server(tlsconfig.Options{
			CertFile: config.Cfg.TLSCert,
			KeyFile:  config.Cfg.TLSKey,
		})
		if err != nil {
			return fmt.Errorf("tls config: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("server starting", "addr", srv.Addr, "tls", useTLS)
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-sigCtx.Done():
		lg.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			bridge.CloseAll()
			return fmt.Errorf("server: %w", err)
		}
	}

	// CloseAll also refuses term.init from WebSocket connections that
	// Shutdown does not track.
	bridge.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	lg.Info("server stopped")
	return nil
}
