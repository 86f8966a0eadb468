package repository

import (
	"context"

	"shop/internal/domain/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentIntentGormRepository struct {
	db *gorm.DB
}

func NewPaymentIntentGormRepository(db *gorm.DB) *PaymentIntentGormRepository {
	return &PaymentIntentGormRepository{db: db}
}

func (r *PaymentIntentGormRepository) Create(ctx context.Context, p model.PaymentIntent) error {
	return translate(r.db.WithContext(ctx).Create(&p).Error)
}

func (r *PaymentIntentGormRepository) FindByIntentID(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	var p model.PaymentIntent
	if err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&p).Error; err != nil {
		return model.PaymentIntent{}, translate(err)
	}
	return p, nil
}

// SELECT ... FOR UPDATE
func (r *PaymentIntentGormRepository) FindByIntentIDForUpdate(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	var p model.PaymentIntent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("intent_id = ?", intentID).
		First(&p).Error
	if err != nil {
		return model.PaymentIntent{}, translate(err)
	}
	return p, nil
}

// 条件付きUPDATE。0件ならもう終端になっている。
func (r *PaymentIntentGormRepository) TransitionFromPending(ctx context.Context, intentID string, to model.PaymentStatus, orderID *int64) (bool, error) {
	values := map[string]interface{}{"status": to}
	if orderID != nil {
		values["order_id"] = *orderID
	}

	res := r.db.WithContext(ctx).
		Model(&model.PaymentIntent{}).
		Where("intent_id = ? AND status = ?", intentID, model.PaymentStatusPending).
		Updates(values)

	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}
