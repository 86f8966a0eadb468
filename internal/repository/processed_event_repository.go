package repository

import (
	"context"

	"shop/internal/domain/model"
)

type ProcessedEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	// 同じIDが既にあれば ErrDuplicate
	Create(ctx context.Context, e model.ProcessedEvent) error
}
