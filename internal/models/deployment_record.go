package models

import (
	"time"
)

// DeploymentRecord is the persisted history entry for one deployment run.
type DeploymentRecord struct {
	ID              string     `gorm:"primaryKey" json:"id"` // Deployment UUID
	ProfileName     string     `gorm:"not null;column:profile_name" json:"profile_name"`
	Host            string     `json:"host"`
	Success         bool       `json:"success"`
	FinalStage      string     `gorm:"column:final_stage" json:"final_stage"`
	Cancelled       bool       `json:"cancelled"`
	TotalFiles      int        `gorm:"column:total_files" json:"total_files"`
	UploadedFiles   int        `gorm:"column:uploaded_files" json:"uploaded_files"`
	FailedFiles     int        `gorm:"column:failed_files" json:"failed_files"`
	UploadedBytes   int64      `gorm:"column:uploaded_bytes" json:"uploaded_bytes"`
	ObsoleteDeleted int        `gorm:"column:obsolete_deleted" json:"obsolete_deleted"`
	Errors          string     `gorm:"type:text" json:"errors"`   // JSON array of strings
	Warnings        string     `gorm:"type:text" json:"warnings"` // JSON array of strings
	StartedAt       time.Time  `gorm:"column:started_at" json:"started_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM
func (DeploymentRecord) TableName() string {
	return "deployment_records"
}
