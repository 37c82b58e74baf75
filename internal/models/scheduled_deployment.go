package models

import (
	"time"
)

// ScheduledDeployment is a recurring deployment registered with the
// daemon's cron scheduler.
type ScheduledDeployment struct {
	ID          string     `gorm:"primaryKey" json:"id"` // UUID
	Name        string     `gorm:"unique;not null" json:"name"`
	ProfileName string     `gorm:"not null;column:profile_name" json:"profile_name"`
	Cron        string     `gorm:"not null" json:"cron"` // 6-field cron expression (with seconds)
	Enabled     bool       `gorm:"not null;default:true" json:"enabled"`
	AppOffline  bool       `gorm:"column:app_offline" json:"app_offline"`
	Cleanup     bool       `json:"cleanup"`
	LastRunAt   *time.Time `gorm:"column:last_run_at" json:"last_run_at,omitempty"`
	LastStatus  string     `gorm:"column:last_status" json:"last_status"` // success, failed, cancelled
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ScheduledDeployment) TableName() string {
	return "scheduled_deployments"
}
