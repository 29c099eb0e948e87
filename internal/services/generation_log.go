package services

import (
	"context"
	"fmt"
	"time"

	"DF-WIZARD/internal/logger"
	"DF-WIZARD/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GenerationLogService stores and queries the generation history.
type GenerationLogService struct {
	db *gorm.DB
}

func NewGenerationLogService(db *gorm.DB) *GenerationLogService {
	return &GenerationLogService{db: db}
}

type GenerationStats struct {
	Total    int64            `json:"total"`
	Statuses map[string]int64 `json:"statuses"`
	Formats  map[string]int64 `json:"formats"`
}

// Record saves an entry without blocking the request that produced it.
func (s *GenerationLogService) Record(ctx context.Context, entry *models.GenerationLog) {
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			logger.Log.Warn("failed to save generation log", zap.String("id", entry.ID), zap.Error(err))
		}
	}()
}

// List returns entries newest first. A status of "" matches every entry.
func (s *GenerationLogService) List(ctx context.Context, status string, limit, offset int) ([]models.GenerationLog, int64, error) {
	var logs []models.GenerationLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.GenerationLog{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count generation logs: %w", err)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch generation logs: %w", err)
	}

	return logs, total, nil
}

func (s *GenerationLogService) Stats(ctx context.Context) (*GenerationStats, error) {
	type bucket struct {
		Key   string
		Count int64
	}
	stats := &GenerationStats{
		Statuses: map[string]int64{},
		Formats:  map[string]int64{},
	}

	var byStatus []bucket
	if err := s.db.WithContext(ctx).Model(&models.GenerationLog{}).
		Select("status AS `key`, COUNT(*) AS count").
		Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	for _, b := range byStatus {
		stats.Statuses[b.Key] = b.Count
		stats.Total += b.Count
	}

	var byFormat []bucket
	if err := s.db.WithContext(ctx).Model(&models.GenerationLog{}).
		Select("output_format AS `key`, COUNT(*) AS count").
		Group("output_format").Scan(&byFormat).Error; err != nil {
		return nil, fmt.Errorf("failed to count by format: %w", err)
	}
	for _, b := range byFormat {
		stats.Formats[b.Key] = b.Count
	}

	return stats, nil
}
