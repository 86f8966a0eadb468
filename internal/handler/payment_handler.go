package handler

import (
	"net/http"

	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	uc *usecase.PaymentUsecase
}

func NewPaymentHandler(uc *usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc}
}

type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	OrderNumber     string `json:"order_number"`
}

type RefundRequest struct {
	Amount *int64 `json:"amount"`
	Reason string `json:"reason"`
}

// 手動確定（無効なら usecase が 403）
func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/payments/confirm", h.confirm)
}

// 返金は管理者グループに載せる
func (h *PaymentHandler) RegisterAdminRoutes(admin *echo.Group) {
	admin.POST("/payments/:intentId/refunds", h.refund)
}

func (h *PaymentHandler) confirm(c echo.Context) error {
	var req ConfirmPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.ConfirmPayment(c.Request().Context(), usecase.ConfirmPaymentInput{
		IntentID:    req.PaymentIntentID,
		OrderNumber: req.OrderNumber,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) refund(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Refund(c.Request().Context(), adminID, c.Param("intentId"), usecase.RefundInput{
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}
