package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DF-WIZARD/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBStore persists session values in the session_values table.
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Get(ctx context.Context, sid, key string) (string, bool, error) {
	if sid == "" {
		return "", false, ErrNoSession
	}
	var v models.SessionValue
	err := s.db.WithContext(ctx).First(&v, "session_id = ? AND `key` = ?", sid, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session value %s: %w", key, err)
	}
	return v.Value, true, nil
}

func (s *DBStore) Set(ctx context.Context, sid, key, value string) error {
	if sid == "" {
		return ErrNoSession
	}
	row := models.SessionValue{SessionID: sid, Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write session value %s: %w", key, err)
	}
	return nil
}

func (s *DBStore) Remove(ctx context.Context, sid, key string) error {
	if sid == "" {
		return ErrNoSession
	}
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND `key` = ?", sid, key).
		Delete(&models.SessionValue{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete session value %s: %w", key, err)
	}
	return nil
}

// PurgeOlderThan removes every session value not written within maxAge.
func (s *DBStore) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("updated_at < ?", time.Now().Add(-maxAge)).
		Delete(&models.SessionValue{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge session values: %w", res.Error)
	}
	return res.RowsAffected, nil
}
