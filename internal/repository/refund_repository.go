package repository

import (
	"context"

	"shop/internal/domain/model"
)

type RefundRepository interface {
	// GatewayRefundIDが既にあれば ErrDuplicate
	Create(ctx context.Context, r model.Refund) error
	ListByIntentID(ctx context.Context, intentID string) ([]model.Refund, error)
}
