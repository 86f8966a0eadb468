package model

import "time"

type Refund struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//ゲートウェイの返金ID（一意）
	GatewayRefundID string `gorm:"type:varchar(255);not null;uniqueIndex" json:"gateway_refund_id"`

	IntentID  string    `gorm:"type:varchar(255);not null;index" json:"intent_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Status    string    `gorm:"type:varchar(30);not null" json:"status"`
	Reason    string    `gorm:"type:varchar(100)" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// 返金済み合計（失敗・取消は数えない）
func SumRefunded(refunds []Refund) int64 {
	var total int64
	for _, r := range refunds {
		if r.Status == "failed" || r.Status == "canceled" {
			continue
		}
		total += r.Amount
	}
	return total
}
