package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConnectionProfile stores the connection settings for one deployment
// target. The password is encrypted at rest and never serialized.
type ConnectionProfile struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"unique;not null" json:"name"`
	ServerURL     string    `gorm:"not null;column:server_url" json:"server_url"`
	Username      string    `gorm:"not null" json:"username"`
	PasswordEnc   string    `gorm:"not null;column:password_enc" json:"-"` // Encrypted, never expose in JSON
	RemoteRoot    string    `gorm:"not null;column:remote_root" json:"remote_root"`
	ProjectPath   string    `gorm:"column:project_path" json:"project_path"`
	BuildCommand  string    `gorm:"column:build_command" json:"build_command"`
	Configuration string    `json:"configuration"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (cp *ConnectionProfile) BeforeCreate(tx *gorm.DB) error {
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (ConnectionProfile) TableName() string {
	return "connection_profiles"
}
