package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gluk-w/termbridge/internal/config"
	"github.com/gluk-w/termbridge/internal/crypto"
	"github.com/gluk-w/termbridge/internal/database"
	"github.com/gluk-w/termbridge/internal/inventory"
	"github.com/go-chi/chi/v5"
)

// setupTestDB points the database and the device store at in-memory SQLite.
func setupTestDB(t *testing.T) *inventory.Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	prevDB, prevCfg, prevDevices := database.DB, config.Cfg, Devices
	database.DB = db
	config.Cfg.SecretKey = ""
	crypto.ResetKey()
	Devices = inventory.New(db)
	t.Cleanup(func() {
		sqlDB.Close()
		database.DB, config.Cfg, Devices = prevDB, prevCfg, prevDevices
		crypto.ResetKey()
	})
	return Devices
}

func devicesRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/devices", ListDevices)
	r.Get("/api/v1/devices/{id}", GetDevice)
	return r
}

func TestListDevices_MasksSecrets(t *testing.T) {
	store := setupTestDB(t)
	_, err := store.Upsert(context.Background(), inventory.Record{
		ID: "web-1", Address: "10.0.0.5", Username: "ops",
		Password: "hunter2", PrivateKey: "-----BEGIN KEY-----\nabc\n-----END KEY-----",
	})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	devicesRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "hunter2") || strings.Contains(body, "BEGIN KEY") {
		t.Fatalf("secret leaked: %s", body)
	}

	var resp struct {
		Devices []inventory.View `json:"devices"`
	}
	json.Unmarshal([]byte(body), &resp)
	if len(resp.Devices) != 1 || !resp.Devices[0].HasPrivateKey {
		t.Errorf("devices = %+v", resp.Devices)
	}
}

func TestGetDevice(t *testing.T) {
	store := setupTestDB(t)
	store.Upsert(context.Background(), inventory.Record{ID: "db-1", Address: "db.internal"})

	w := httptest.NewRecorder()
	devicesRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices/db-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var v inventory.View
	json.NewDecoder(w.Body).Decode(&v)
	if v.Address != "db.internal" {
		t.Errorf("view = %+v", v)
	}

	w = httptest.NewRecorder()
	devicesRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	setupTestDB(t)

	w := httptest.NewRecorder()
	HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp map[string]interface{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "healthy" || resp["database"] != "connected" {
		t.Errorf("health = %v", resp)
	}
}

func TestHealthCheck_NoDatabase(t *testing.T) {
	prev := database.DB
	database.DB = nil
	t.Cleanup(func() { database.DB = prev })

	w := httptest.NewRecorder()
	HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp map[string]interface{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "unhealthy" {
		t.Errorf("health = %v", resp)
	}
}
