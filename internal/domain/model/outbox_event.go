package model

import "time"

const (
	OutboxEventOrderPaid     = "order.paid"
	OutboxEventPaymentFailed = "payment.failed"
)

// 同じトランザクションで書いて、後でpollerが配信する
type OutboxEvent struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType   string     `gorm:"type:varchar(50);not null;index" json:"event_type"`
	AggregateID string     `gorm:"type:varchar(255);not null" json:"aggregate_id"`
	Payload     []byte     `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
}
