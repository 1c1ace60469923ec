package database

import "time"

// Setting is a key/value row for server-owned state such as the encryption
// key.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Device is an inventory record a terminal session can be opened against.
type Device struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Description string    `gorm:"not null;default:''" json:"description"`
	Type        string    `gorm:"not null;default:server" json:"type"`
	Protocol    string    `gorm:"not null;default:ssh" json:"protocol"`
	Address     string    `gorm:"not null;default:''" json:"address"`
	Port        int       `gorm:"not null;default:0" json:"port"`
	Username    string    `json:"username"`
	Password    string    `json:"-"` // Fernet-encrypted
	PrivateKey  string    `json:"-"` // Fernet-encrypted
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
