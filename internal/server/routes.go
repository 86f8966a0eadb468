package server

import (
	"net/http"

	"shop/internal/config"
	"shop/internal/handler"
	"shop/internal/middleware"

	"github.com/labstack/echo/v4"
)

// Handlers はmainで組み立てたハンドラ一式
type Handlers struct {
	Cart       *handler.CartHandler
	Checkout   *handler.CheckoutHandler
	Webhook    *handler.WebhookHandler
	Payment    *handler.PaymentHandler
	Order      *handler.OrderHandler
	AdminOrder *handler.AdminOrderHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers, checkoutLimiter *middleware.RateLimiter) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	//公開API（セッションIDで識別）
	h.Cart.RegisterRoutes(e)
	if checkoutLimiter != nil {
		h.Checkout.RegisterRoutes(e, checkoutLimiter.Middleware())
	} else {
		h.Checkout.RegisterRoutes(e)
	}
	h.Order.RegisterRoutes(e)
	h.Payment.RegisterRoutes(e)

	//署名で認証する
	h.Webhook.RegisterRoutes(e)

	//管理者
	admin := e.Group("/admin", middleware.AuthJWT(cfg), middleware.AdminRoleGuard())
	h.AdminOrder.RegisterRoutes(admin)
	h.Payment.RegisterAdminRoutes(admin)
}
