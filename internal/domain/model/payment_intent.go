package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// PENDING 以外は終端
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

// 決済ゲートウェイ側のintentのローカル記録
// 削除しない。Metadataが注文を組み立てる唯一の材料。
type PaymentIntent struct {
	ID        int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	IntentID  string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"intent_id"`
	Amount    int64         `gorm:"not null" json:"amount"`
	Currency  string        `gorm:"type:varchar(3);not null" json:"currency"`
	Status    PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	SessionID string        `gorm:"type:varchar(64);not null;index" json:"session_id"`

	//CheckoutMetadataのJSON
	Metadata []byte `gorm:"type:jsonb;not null" json:"-"`

	//注文に紐づくまではnull
	OrderID *int64 `gorm:"index" json:"order_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
