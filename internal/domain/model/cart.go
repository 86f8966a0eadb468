package model

import "time"

// 1セッションにつきカートは1つ
// 初回の追加で作られ、明示的なクリアか注文確定で消える。
type Cart struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"session_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
