package repository

import (
	"context"

	"shop/internal/domain/model"
)

type CartRepository interface {
	// 無ければ ErrNotFound
	FindBySessionID(ctx context.Context, sessionID string) (model.Cart, error)
	GetOrCreateBySessionID(ctx context.Context, sessionID string) (model.Cart, error)
	// カートと明細を削除。カートが無かったら false
	DeleteBySessionID(ctx context.Context, sessionID string) (bool, error)
}
