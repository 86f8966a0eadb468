package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"
)

// nilの条件は絞り込まない
type AuditLogFilter struct {
	ActorUserID  *int64
	Action       *model.AuditAction
	ResourceType *model.AuditResourceType
	ResourceID   *int64
	// 注文番号やintent id
	ResourceKey *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

type AuditLogRepository interface {
	// 業務の更新と同じtxで書く
	Create(ctx context.Context, log model.AuditLog) error
	// 新しい順
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
