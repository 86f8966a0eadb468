package repository

import (
	"context"

	"shop/internal/domain/model"

	"gorm.io/gorm"
)

type ProcessedEventGormRepository struct {
	db *gorm.DB
}

func NewProcessedEventGormRepository(db *gorm.DB) *ProcessedEventGormRepository {
	return &ProcessedEventGormRepository{db: db}
}

func (r *ProcessedEventGormRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ProcessedEvent{}).
		Where("id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// 主キーの一意制約が同時配信を止める（ErrDuplicate）
func (r *ProcessedEventGormRepository) Create(ctx context.Context, e model.ProcessedEvent) error {
	return translate(r.db.WithContext(ctx).Create(&e).Error)
}
