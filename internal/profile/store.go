// Package profile persists connection profiles with encrypted credentials.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"sitedeploy/internal/crypto"
	"sitedeploy/internal/models"
)

// ValidationError reports an invalid profile field. Profile validation
// failures are never retryable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsPermanent marks the error as never retryable.
func (e *ValidationError) IsPermanent() bool { return true }

// Store is the GORM-backed profile repository.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Validate checks the fields a deployment needs before any connection is
// attempted.
func Validate(p *models.ConnectionProfile) error {
	if p.Name == "" {
		return &ValidationError{"Name", "required"}
	}
	if p.ServerURL == "" {
		return &ValidationError{"ServerURL", "required"}
	}
	if !strings.HasPrefix(p.ServerURL, "http://") && !strings.HasPrefix(p.ServerURL, "https://") {
		return &ValidationError{"ServerURL", "must start with http:// or https://"}
	}
	if p.Username == "" {
		return &ValidationError{"Username", "required"}
	}
	return nil
}

// Save validates the profile, encrypts the password, and upserts by name.
func (s *Store) Save(p *models.ConnectionProfile, password string) error {
	if err := Validate(p); err != nil {
		return err
	}
	if password == "" && p.PasswordEnc == "" {
		return &ValidationError{"Password", "required"}
	}

	if password != "" {
		enc, err := crypto.EncryptPassword(password)
		if err != nil {
			return fmt.Errorf("failed to encrypt password: %w", err)
		}
		p.PasswordEnc = enc
	}

	var existing models.ConnectionProfile
	err := s.db.Where("name = ?", p.Name).First(&existing).Error
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		return s.db.Save(p).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.Create(p).Error
	default:
		return fmt.Errorf("failed to query profile: %w", err)
	}
}

// Load returns the profile and its decrypted password.
func (s *Store) Load(name string) (*models.ConnectionProfile, string, error) {
	var p models.ConnectionProfile
	if err := s.db.Where("name = ?", name).First(&p).Error; err != nil {
		return nil, "", fmt.Errorf("profile not found: %w", err)
	}
	password, err := crypto.DecryptPassword(p.PasswordEnc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decrypt password: %w", err)
	}
	return &p, password, nil
}

// List returns all profiles, newest first.
func (s *Store) List() ([]models.ConnectionProfile, error) {
	var profiles []models.ConnectionProfile
	if err := s.db.Order("created_at DESC").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// Delete removes a profile by name.
func (s *Store) Delete(name string) error {
	res := s.db.Where("name = ?", name).Delete(&models.ConnectionProfile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", name)
	}
	return nil
}
