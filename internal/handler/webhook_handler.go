package handler

import (
	"errors"
	"io"
	"net/http"

	"shop/internal/gateway"
	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// webhookの本文上限
const maxWebhookBody = 65536

// /stripe/webhook
// 署名検証に生のボディが要るので Bind は使わない。
type WebhookHandler struct {
	uc     *usecase.WebhookUsecase
	gw     gateway.PaymentGateway
	secret string
	logger *zap.Logger
}

func NewWebhookHandler(uc *usecase.WebhookUsecase, gw gateway.PaymentGateway, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{uc: uc, gw: gw, secret: secret, logger: logger}
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Result   string `json:"result"`
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/stripe/webhook", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
	}

	ev, err := h.gw.VerifyAndParseEvent(body, c.Request().Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		// 署名NGは再送されても通らないので 400
		h.logger.Warn("webhook rejected", zap.Error(err))
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
	}

	res, err := h.uc.HandleEvent(c.Request().Context(), ev)
	if err != nil {
		// 5xxを返してゲートウェイに再送させる
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, WebhookResponse{Received: true, Result: string(res)})
}
