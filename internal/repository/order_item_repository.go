package repository

import (
	"context"

	"shop/internal/domain/model"
)

// 明細は注文と同じtxで一括作成し、以後は書き換えない
type OrderItemRepository interface {
	// OrderIDは引数の値で上書きする
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	// 無ければ空スライス
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
}
