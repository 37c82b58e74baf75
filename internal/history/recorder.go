// Package history persists one record per deployment run.
package history

import (
	"fmt"

	"gorm.io/gorm"

	"sitedeploy/internal/models"
)

// Recorder is the GORM-backed history repository.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record persists one deployment record.
func (r *Recorder) Record(rec models.DeploymentRecord) error {
	if err := r.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record deployment history: %w", err)
	}
	return nil
}

// List returns the most recent deployments, newest first.
func (r *Recorder) List(limit int) ([]models.DeploymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []models.DeploymentRecord
	if err := r.db.Order("started_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list deployment history: %w", err)
	}
	return records, nil
}
