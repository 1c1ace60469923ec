package database

import (
	"path/filepath"
	"testing"

	"github.com/gluk-w/termbridge/internal/config"
)

// setupTestDB points DB at an in-memory SQLite database for the test.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	prev := DB
	DB = db
	t.Cleanup(func() {
		sqlDB.Close()
		DB = prev
	})
}

func TestSettingRoundTrip(t *testing.T) {
	setupTestDB(t)

	if _, err := GetSetting("missing"); err == nil {
		t.Error("expected error for missing setting")
	}
	if err := SetSetting("k", "v1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := SetSetting("k", "v2"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	got, err := GetSetting("k")
	if err != nil || got != "v2" {
		t.Errorf("GetSetting = %q, %v; want v2", got, err)
	}
}

func TestDeviceDefaults(t *testing.T) {
	setupTestDB(t)

	if err := DB.Create(&Device{ID: "d1", Address: "10.0.0.5"}).Error; err != nil {
		t.Fatalf("create device: %v", err)
	}
	var loaded Device
	if err := DB.First(&loaded, "id = ?", "d1").Error; err != nil {
		t.Fatalf("load device: %v", err)
	}
	if loaded.Protocol != "ssh" || loaded.Type != "server" {
		t.Errorf("defaults = %q/%q, want ssh/server", loaded.Protocol, loaded.Type)
	}
}

func TestInitCreatesFile(t *testing.T) {
	prevCfg, prevDB := config.Cfg, DB
	t.Cleanup(func() { config.Cfg, DB = prevCfg, prevDB })

	config.Cfg.DatabasePath = filepath.Join(t.TempDir(), "nested", "termbridge.db")
	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()
	if err := Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
