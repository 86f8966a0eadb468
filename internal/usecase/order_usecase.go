package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type OrderOutput struct {
	ID              int64                  `json:"id"`
	OrderNumber     string                 `json:"order_number"`
	Status          string                 `json:"status"`
	TotalAmount     int64                  `json:"total_amount"`
	Currency        string                 `json:"currency"`
	PaymentIntentID string                 `json:"payment_intent_id,omitempty"`
	Customer        *model.CustomerDetails `json:"customer,omitempty"`
	PaidAt          *time.Time             `json:"paid_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	Items           []OrderItemOutput      `json:"items"`
}

// 注文番号で1件（購入者向け。顧客情報は返さない）
func (u *OrderUsecase) GetByOrderNumber(ctx context.Context, orderNumber string) (OrderOutput, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" || len(orderNumber) > 32 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order_number")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByOrderNumber(ctx, orderNumber)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return dbError(err)
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}

		out = toOrderOutput(o, items, false)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem, withCustomer bool) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal(),
		})
	}

	out := OrderOutput{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		PaidAt:      o.PaidAt,
		CreatedAt:   o.CreatedAt,
		Items:       outItems,
	}
	if o.PaymentIntentID != nil {
		out.PaymentIntentID = *o.PaymentIntentID
	}
	if withCustomer {
		c := o.Customer
		out.Customer = &c
	}
	return out
}
