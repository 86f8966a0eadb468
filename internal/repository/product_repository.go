package repository

import (
	"context"

	"shop/internal/domain/model"
)

// カタログの読み取りだけを約束。
// 在庫は参考値（予約しない）。
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
}
