package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"gorm.io/gorm"
)

type OutboxGormRepository struct {
	db *gorm.DB
}

func NewOutboxGormRepository(db *gorm.DB) *OutboxGormRepository {
	return &OutboxGormRepository{db: db}
}

func (r *OutboxGormRepository) Create(ctx context.Context, e model.OutboxEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(&e).Error
}

// 失敗し続ける行が先頭に居座らないよう attempts を先に並べる。
// 上限に達した行は消さずに残す（last_error を見て手で直す）
func (r *OutboxGormRepository) ListUnpublished(ctx context.Context, limit int, maxAttempts int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}

	var items []model.OutboxEvent
	err := q.Order("attempts asc, id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.OutboxEvent{}, err
	}
	return items, nil
}

func (r *OutboxGormRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"published_at": at, "last_error": ""})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OutboxGormRepository) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastErr,
		}).Error
}
