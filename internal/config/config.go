package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr    string   `envconfig:"TERMBRIDGE_LISTEN_ADDR" default:":3000"`
	DataPath      string   `envconfig:"TERMBRIDGE_DATA_PATH" default:"./data"`
	DatabasePath  string   `envconfig:"TERMBRIDGE_DATABASE_PATH" default:""`
	LogPath       string   `envconfig:"TERMBRIDGE_LOG_PATH" default:""`
	LogLevel      string   `envconfig:"TERMBRIDGE_LOG_LEVEL" default:"info"`
	AuthDisabled  bool     `envconfig:"TERMBRIDGE_AUTH_DISABLED" default:"false"`
	AuthTokenHash string   `envconfig:"TERMBRIDGE_AUTH_TOKEN_HASH" default:""`
	CORSOrigins   []string `envconfig:"TERMBRIDGE_CORS_ORIGINS" default:"http://localhost:5173"`
	SecretKey     string   `envconfig:"TERMBRIDGE_SECRET_KEY" default:""`
	TLSCert       string   `envconfig:"TERMBRIDGE_TLS_CERT" default:""`
	TLSKey        string   `envconfig:"TERMBRIDGE_TLS_KEY" default:""`

	// Terminal session settings
	Shell            string `envconfig:"TERMBRIDGE_SHELL" default:""`
	ShellHome        string `envconfig:"TERMBRIDGE_SHELL_HOME" default:""`
	SSHBinary        string `envconfig:"TERMBRIDGE_SSH_BINARY" default:"ssh"`
	SSHHostKeyPolicy string `envconfig:"TERMBRIDGE_SSH_HOST_KEY_POLICY" default:"insecure"`
	// CredentialDir is the parent of each server's private key directory.
	CredentialDir   string `envconfig:"TERMBRIDGE_CREDENTIAL_DIR" default:""`
	CredentialSweep string `envconfig:"TERMBRIDGE_CREDENTIAL_SWEEP" default:"@every 10m"`
	MaxInputSize    string `envconfig:"TERMBRIDGE_MAX_INPUT_SIZE" default:"64KiB"`
	InventoryFile   string `envconfig:"TERMBRIDGE_INVENTORY_FILE" default:""`
}

var Cfg Settings

// Load reads TERMBRIDGE_* variables into Cfg and fills derived paths. Tags
// carry the full variable name: with a prefix, envconfig would fall back to
// the bare name and pick up unrelated variables such as $SHELL.
func Load() error {
	if err := envconfig.Process("", &Cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if Cfg.DatabasePath == "" {
		Cfg.DatabasePath = filepath.Join(Cfg.DataPath, "termbridge.db")
	}
	if Cfg.LogPath == "" {
		Cfg.LogPath = filepath.Join(Cfg.DataPath, "termbridge.log")
	}
	if Cfg.CredentialDir == "" {
		Cfg.CredentialDir = filepath.Join(os.TempDir(), "termbridge-keys")
	}
	if _, err := Cfg.MaxInputBytes(); err != nil {
		return err
	}
	return nil
}

// MaxInputBytes parses MaxInputSize ("64KiB", "1MB", ...) into bytes.
func (s Settings) MaxInputBytes() (int, error) {
	n, err := units.RAMInBytes(s.MaxInputSize)
	if err != nil {
		return 0, fmt.Errorf("parse TERMBRIDGE_MAX_INPUT_SIZE %q: %w", s.MaxInputSize, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("TERMBRIDGE_MAX_INPUT_SIZE must be positive, got %q", s.MaxInputSize)
	}
	return int(n), nil
}
