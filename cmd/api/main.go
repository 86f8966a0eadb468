package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop/internal/bootstrap"
	"shop/internal/config"
	"shop/internal/handler"
	infraRepo "shop/internal/infra/repository"
	"shop/internal/logger"
	"shop/internal/middleware"
	"shop/internal/publisher"
	"shop/internal/server"
	"shop/internal/usecase"
	"shop/internal/validator"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	//.env はローカル用（無くてもよい）
	_ = godotenv.Load(".env", "../.env")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := bootstrap.OpenDB(cfg, true)
	if err != nil {
		log.Fatal("db init failed", zap.Error(err))
	}

	//Repository（GORM実装）生成
	txm := infraRepo.NewTxManagerGorm(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	paymentRepo := infraRepo.NewPaymentIntentGormRepository(gormDB)
	refundRepo := infraRepo.NewRefundGormRepository(gormDB)
	outboxRepo := infraRepo.NewOutboxGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)

	//表示用カタログ（Redisがあればキャッシュ）
	catalog, _, err := bootstrap.NewCatalog(ctx, cfg, productRepo, log)
	if err != nil {
		log.Fatal("cache init failed", zap.Error(err))
	}

	gw := bootstrap.NewGateway(cfg, log)

	pub, err := bootstrap.NewPublisher(ctx, cfg, log)
	if err != nil {
		log.Fatal("publisher init failed", zap.Error(err))
	}

	//Usecase生成
	v := validator.NewCheckoutValidator()
	settler := usecase.NewPaymentSettler(cfg.CheckoutFlow, log)

	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo, catalog, v)
	checkoutUC := usecase.NewCheckoutUsecase(txm, cartRepo, cartRepo, productRepo, paymentRepo, gw, v, usecase.CheckoutConfig{
		Currency:       cfg.PaymentCurrency,
		Flow:           cfg.CheckoutFlow,
		GatewayTimeout: cfg.GatewayTimeout,
	}, log)
	webhookUC := usecase.NewWebhookUsecase(txm, settler, log)
	paymentUC := usecase.NewPaymentUsecase(txm, paymentRepo, refundRepo, gw, settler, usecase.PaymentConfig{
		ManualConfirmEnabled: cfg.ManualConfirmEnabled,
		GatewayTimeout:       cfg.GatewayTimeout,
	}, log)
	orderUC := usecase.NewOrderUsecase(txm)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, auditRepo)

	//Handler生成
	h := server.Handlers{
		Cart:       handler.NewCartHandler(cartUC),
		Checkout:   handler.NewCheckoutHandler(checkoutUC),
		Webhook:    handler.NewWebhookHandler(webhookUC, gw, cfg.StripeWebhookSecret, log),
		Payment:    handler.NewPaymentHandler(paymentUC),
		Order:      handler.NewOrderHandler(orderUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
	}

	limiter := middleware.NewRateLimiter(cfg.CheckoutRateLimit, 0)
	go limiter.RunCleanup(ctx, time.Minute)

	//outbox → SNS
	poller := publisher.NewOutboxPoller(outboxRepo, pub, cfg.OutboxPollInterval, cfg.OutboxMaxAttempts, log)
	go poller.Run(ctx)

	log.Info("starting api",
		zap.String("env", cfg.GoEnv),
		zap.String("checkout_flow", string(cfg.CheckoutFlow)),
		zap.Bool("manual_confirm", cfg.ManualConfirmEnabled),
	)

	//Server起動
	e := server.New(log)
	server.RegisterRoutes(e, cfg, h, limiter)

	addr := ":" + cfg.Port
	if err := server.Start(ctx, e, addr, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
