package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	GenerationStatusCompleted = "completed"
	GenerationStatusFailed    = "failed"
)

type GenerationLog struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID       string         `gorm:"type:varchar(36);index" json:"session_id"`
	TemplateID      string         `gorm:"type:varchar(191)" json:"template_id"`
	DataFileID      string         `gorm:"type:varchar(191)" json:"data_file_id"`
	JobID           string         `gorm:"type:varchar(191)" json:"job_id,omitempty"`
	OutputFormat    string         `gorm:"type:varchar(10);index" json:"output_format"`
	ProcessAll      bool           `json:"process_all"`
	StartRow        *int           `json:"start_row"`
	EndRow          *int           `json:"end_row"`
	FilenamePattern string         `gorm:"type:varchar(255)" json:"filename_pattern"`
	Mapping         string         `gorm:"type:json" json:"mapping"` // JSON object placeholder -> header
	Status          string         `gorm:"type:varchar(20);index" json:"status"`
	Error           string         `gorm:"type:text" json:"error,omitempty"`
	ArchiveSize     int64          `json:"archive_size"`
	DurationMs      int64          `json:"duration_ms"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (GenerationLog) TableName() string {
	return "generation_logs"
}
