package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// 遷移できる先の一覧
// PENDING/PAID/FAILED への遷移は決済側だけが行う。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusFailed, OrderStatusCanceled},
	OrderStatusPaid:      {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusFailed:    {OrderStatusCanceled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCanceled:  {},
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// 終端（これ以上変わらない）
func (s OrderStatus) IsTerminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// 管理画面から設定できるステータスか
func (s OrderStatus) IsFulfillment() bool {
	switch s {
	case OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

// 注文
// TotalAmount は明細の合計で、紐づく決済のAmountと一致する。
type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber     string          `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_number"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount     int64           `gorm:"not null" json:"total_amount"`
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentIntentID *string         `gorm:"type:varchar(255);uniqueIndex" json:"payment_intent_id,omitempty"`
	Customer        CustomerDetails `gorm:"embedded;embeddedPrefix:customer_" json:"customer"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
