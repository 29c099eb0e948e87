package models

import (
	"time"
)

// SessionValue is one key of a wizard session persisted in MySQL.
type SessionValue struct {
	SessionID string    `gorm:"type:varchar(36);primaryKey" json:"session_id"`
	Key       string    `gorm:"type:varchar(64);primaryKey" json:"key"`
	Value     string    `gorm:"type:longtext" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (SessionValue) TableName() string {
	return "session_values"
}
