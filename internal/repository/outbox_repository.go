package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"
)

type OutboxRepository interface {
	Create(ctx context.Context, e model.OutboxEvent) error
	// 未配信を失敗回数の少ない順→古い順に。attempts が maxAttempts 以上のものは返さない（0なら上限なし）
	ListUnpublished(ctx context.Context, limit int, maxAttempts int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, lastErr string) error
}
