package repository

import (
	"context"

	"shop/internal/domain/model"
)

type PaymentIntentRepository interface {
	// IntentIDが既にあれば ErrDuplicate
	Create(ctx context.Context, p model.PaymentIntent) error
	FindByIntentID(ctx context.Context, intentID string) (model.PaymentIntent, error)
	// 行ロック付き（トランザクション内で使う）
	FindByIntentIDForUpdate(ctx context.Context, intentID string) (model.PaymentIntent, error)

	// status = PENDING のときだけ to にする。orderIDがnilなら紐づけは変えない。
	// 遷移しなかったら false（もう終端だった）
	TransitionFromPending(ctx context.Context, intentID string, to model.PaymentStatus, orderID *int64) (bool, error)
}
