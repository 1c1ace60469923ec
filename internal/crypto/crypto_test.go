package crypto

import (
	"errors"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/gluk-w/termbridge/internal/config"
	"github.com/gluk-w/termbridge/internal/database"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	prevDB, prevCfg := database.DB, config.Cfg
	database.DB = db
	ResetKey()
	t.Cleanup(func() {
		sqlDB.Close()
		database.DB, config.Cfg = prevDB, prevCfg
		ResetKey()
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setupTestDB(t)

	tok, err := Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if tok == "hunter2" || tok == "" {
		t.Fatalf("token not encrypted: %q", tok)
	}
	got, err := Decrypt(tok)
	if err != nil || got != "hunter2" {
		t.Errorf("Decrypt = %q, %v", got, err)
	}
}

func TestGeneratedKeyIsPersisted(t *testing.T) {
	setupTestDB(t)

	tok, err := Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	stored, err := database.GetSetting(keySetting)
	if err != nil || stored == "" {
		t.Fatalf("key not stored: %v", err)
	}

	ResetKey()
	got, err := Decrypt(tok)
	if err != nil || got != "secret" {
		t.Errorf("Decrypt after reload = %q, %v", got, err)
	}
}

func TestConfiguredKey(t *testing.T) {
	setupTestDB(t)
	var k fernet.Key
	if err := k.Generate(); err != nil {
		t.Fatal(err)
	}
	config.Cfg.SecretKey = k.Encode()

	tok, err := Encrypt("x")
	if err != nil {
		t.Fatal(err)
	}
	if msg := fernet.VerifyAndDecrypt([]byte(tok), 0, []*fernet.Key{&k}); string(msg) != "x" {
		t.Error("token not encrypted with the configured key")
	}
	if _, err := database.GetSetting(keySetting); err == nil {
		t.Error("configured key should not be written to settings")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	setupTestDB(t)
	if _, err := Decrypt("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
	if got, err := Decrypt(""); got != "" || err != nil {
		t.Errorf("Decrypt(\"\") = %q, %v", got, err)
	}
}
