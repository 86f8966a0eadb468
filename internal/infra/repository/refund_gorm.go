package repository

import (
	"context"

	"shop/internal/domain/model"

	"gorm.io/gorm"
)

type RefundGormRepository struct {
	db *gorm.DB
}

func NewRefundGormRepository(db *gorm.DB) *RefundGormRepository {
	return &RefundGormRepository{db: db}
}

func (r *RefundGormRepository) Create(ctx context.Context, rf model.Refund) error {
	return translate(r.db.WithContext(ctx).Create(&rf).Error)
}

func (r *RefundGormRepository) ListByIntentID(ctx context.Context, intentID string) ([]model.Refund, error) {
	var items []model.Refund
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).Order("id asc").Find(&items).Error
	if err != nil {
		return []model.Refund{}, err
	}
	return items, nil
}
