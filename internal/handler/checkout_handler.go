package handler

import (
	"net/http"

	"shop/internal/domain/model"
	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type CheckoutRequest struct {
	SessionID       string                `json:"session_id"`
	CustomerDetails model.CustomerDetails `json:"customer_details"`
}

// mws はレート制限など
func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, mws ...echo.MiddlewareFunc) {
	e.POST("/checkout", h.checkout, mws...)
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.InitiateCheckout(c.Request().Context(), usecase.InitiateCheckoutInput{
		SessionID:      req.SessionID,
		Customer:       req.CustomerDetails,
		IdempotencyKey: c.Request().Header.Get("Idempotency-Key"),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
