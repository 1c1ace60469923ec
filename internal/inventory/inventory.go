// Package inventory stores the devices terminal sessions can target and
// resolves a device id into a connection descriptor. Passwords and private
// keys are encrypted at rest.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gluk-w/termbridge/internal/crypto"
	"github.com/gluk-w/termbridge/internal/database"
	"github.com/gluk-w/termbridge/internal/logging"
	"github.com/gluk-w/termbridge/internal/termbridge"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDeviceNotFound = errors.New("device not found")

// Record is a device in an import file. Field names match the devices.json
// written by the web UI.
type Record struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Type        string `json:"type" yaml:"type"`
	Protocol    string `json:"protocol" yaml:"protocol"`
	Address     string `json:"address" yaml:"address"`
	Port        int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKey  string `json:"privateKey,omitempty" yaml:"privateKey,omitempty"`
}

// View is a device as shown over the API. Secrets are masked.
type View struct {
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	Type          string    `json:"type"`
	Protocol      string    `json:"protocol"`
	Address       string    `json:"address"`
	Port          int       `json:"port,omitempty"`
	Username      string    `json:"username"`
	Password      string    `json:"password,omitempty"`
	HasPrivateKey bool      `json:"has_private_key"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Format selects the import file syntax.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from a file extension; anything that is not
// YAML is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

type Store struct {
	db  *gorm.DB
	log *log.Logger
}

// New returns a store over db. A nil db uses database.DB.
func New(db *gorm.DB) *Store {
	if db == nil {
		db = database.DB
	}
	return &Store{db: db, log: logging.For("inventory")}
}

// Lookup resolves a device id into a descriptor with decrypted secrets.
func (s *Store) Lookup(ctx context.Context, id string) (termbridge.Descriptor, error) {
	dev, err := s.find(ctx, id)
	if err != nil {
		return termbridge.Descriptor{}, err
	}
	password, err := crypto.Decrypt(dev.Password)
	if err != nil {
		return termbridge.Descriptor{}, fmt.Errorf("device %s password: %w", id, err)
	}
	key, err := crypto.Decrypt(dev.PrivateKey)
	if err != nil {
		return termbridge.Descriptor{}, fmt.Errorf("device %s private key: %w", id, err)
	}
	return termbridge.Descriptor{
		Protocol:   termbridge.Protocol(dev.Protocol),
		Address:    dev.Address,
		Port:       dev.Port,
		Username:   dev.Username,
		Password:   password,
		PrivateKey: key,
	}, nil
}

func (s *Store) Get(ctx context.Context, id string) (View, error) {
	dev, err := s.find(ctx, id)
	if err != nil {
		return View{}, err
	}
	return toView(dev), nil
}

func (s *Store) List(ctx context.Context) ([]View, error) {
	var devs []database.Device
	if err := s.db.WithContext(ctx).Order("description, id").Find(&devs).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	views := make([]View, 0, len(devs))
	for i := range devs {
		views = append(views, toView(&devs[i]))
	}
	return views, nil
}

// Upsert validates rec, encrypts its secrets and stores it, replacing any
// device with the same id. A missing id is generated. It returns the id.
func (s *Store) Upsert(ctx context.Context, rec Record) (string, error) {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Protocol == "" {
		rec.Protocol = string(termbridge.ProtocolSSH)
	}
	if rec.Type == "" {
		rec.Type = "server"
	}

	d := termbridge.Descriptor{
		Protocol: termbridge.Protocol(rec.Protocol),
		Address:  rec.Address,
		Port:     rec.Port,
		Username: rec.Username,
	}
	if _, err := d.Normalize(); err != nil {
		return "", fmt.Errorf("device %s: %w", rec.ID, err)
	}

	password, err := crypto.Encrypt(rec.Password)
	if err != nil {
		return "", fmt.Errorf("device %s: %w", rec.ID, err)
	}
	key, err := crypto.Encrypt(rec.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("device %s: %w", rec.ID, err)
	}

	dev := database.Device{
		ID:          rec.ID,
		Description: rec.Description,
		Type:        rec.Type,
		Protocol:    strings.ToLower(rec.Protocol),
		Address:     strings.TrimSpace(rec.Address),
		Port:        rec.Port,
		Username:    strings.TrimSpace(rec.Username),
		Password:    password,
		PrivateKey:  key,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&dev).Error
	if err != nil {
		return "", fmt.Errorf("save device %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Import stores every record in data in one transaction, so a bad record
// leaves the inventory unchanged.
func (s *Store) Import(ctx context.Context, data []byte, format Format) (int, error) {
	recs, err := ParseRecords(data, format)
	if err != nil {
		return 0, err
	}
	if err := crypto.EnsureKey(); err != nil {
		return 0, err
	}

	n := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := &Store{db: tx, log: s.log}
		for _, rec := range recs {
			if _, err := txStore.Upsert(ctx, rec); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("imported devices", "count", n)
	return n, nil
}

func (s *Store) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read inventory file: %w", err)
	}
	return s.Import(ctx, data, FormatFor(path))
}

// ParseRecords decodes a list of devices. YAML files may also wrap the list
// in a "devices" key.
func ParseRecords(data []byte, format Format) ([]Record, error) {
	var recs []Record
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &recs); err != nil {
			var wrapped struct {
				Devices []Record `yaml:"devices"`
			}
			if werr := yaml.Unmarshal(data, &wrapped); werr != nil {
				return nil, fmt.Errorf("parse yaml inventory: %w", err)
			}
			recs = wrapped.Devices
		}
	default:
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("parse json inventory: %w", err)
		}
	}
	return recs, nil
}

func (s *Store) find(ctx context.Context, id string) (*database.Device, error) {
	var dev database.Device
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&dev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	return &dev, nil
}

func toView(d *database.Device) View {
	v := View{
		ID:            d.ID,
		Description:   d.Description,
		Type:          d.Type,
		Protocol:      d.Protocol,
		Address:       d.Address,
		Port:          d.Port,
		Username:      d.Username,
		HasPrivateKey: d.PrivateKey != "",
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Password != "" {
		v.Password = "****"
	}
	return v
}
