// Package crypto encrypts inventory secrets at rest with Fernet.
package crypto

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/gluk-w/termbridge/internal/config"
	"github.com/gluk-w/termbridge/internal/database"
)

const keySetting = "fernet_key"

var ErrInvalidToken = errors.New("decrypt: invalid token")

var (
	keyMu  sync.Mutex
	cached *fernet.Key
)

// getKey returns the configured key, or the one stored in the settings table,
// generating and storing a new one on first use.
func getKey() (*fernet.Key, error) {
	keyMu.Lock()
	defer keyMu.Unlock()
	if cached != nil {
		return cached, nil
	}

	if config.Cfg.SecretKey != "" {
		key, err := fernet.DecodeKey(config.Cfg.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("decode TERMBRIDGE_SECRET_KEY: %w", err)
		}
		cached = key
		return key, nil
	}

	keyStr, err := database.GetSetting(keySetting)
	if err != nil {
		var k fernet.Key
		if err := k.Generate(); err != nil {
			return nil, fmt.Errorf("generate fernet key: %w", err)
		}
		if err := database.SetSetting(keySetting, k.Encode()); err != nil {
			return nil, fmt.Errorf("save fernet key: %w", err)
		}
		cached = &k
		return cached, nil
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	cached = key
	return key, nil
}

// EnsureKey loads or creates the key so later calls do not touch the
// settings table.
func EnsureKey() error {
	_, err := getKey()
	return err
}

// ResetKey forgets the cached key so the next call reloads it.
func ResetKey() {
	keyMu.Lock()
	cached = nil
	keyMu.Unlock()
}

// Encrypt returns a Fernet token for plaintext. Empty input stays empty.
func Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	key, err := getKey()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	key, err := getKey()
	if err != nil {
		return "", err
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return "", ErrInvalidToken
	}
	return string(msg), nil
}
