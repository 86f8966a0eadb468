package model

import "time"

// 適用済みのwebhookイベント
// 行があれば「もう処理した」。更新も削除もしない。
type ProcessedEvent struct {
	ID          string    `gorm:"primaryKey;type:varchar(255)" json:"id"`
	Type        string    `gorm:"type:varchar(100);not null" json:"type"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
}
