package bootstrap

import (
	"context"
	"fmt"
	"time"

	"shop/internal/config"
	"shop/internal/gateway"
	"shop/internal/infra/cache"
	"shop/internal/infra/db"
	infraGateway "shop/internal/infra/gateway"
	"shop/internal/infra/sns"
	"shop/internal/publisher"
	repo "shop/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// api と storectl で共通の部品組み立て

func OpenDB(cfg config.Config, migrate bool) (*gorm.DB, error) {
	gormDB, err := db.Connect(cfg.DSN(), !cfg.IsProd())
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if migrate {
		if err := db.Migrate(gormDB); err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
	}
	return gormDB, nil
}

func NewGateway(cfg config.Config, logger *zap.Logger) gateway.PaymentGateway {
	return infraGateway.NewStripeGateway(infraGateway.StripeConfig{
		SecretKey:         cfg.StripeSecretKey,
		Timeout:           cfg.GatewayTimeout,
		MaxNetworkRetries: 2,
	}, logger)
}

// REDIS_ADDRが無ければ (products, nil) を返す
func NewCatalog(ctx context.Context, cfg config.Config, products repo.ProductRepository, logger *zap.Logger) (repo.ProductRepository, *cache.ProductCache, error) {
	if cfg.RedisAddr == "" {
		return products, nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	pc := cache.NewProductCache(client, products, cfg.CatalogCacheTTL, logger)
	return pc, pc, nil
}

// トピックが無ければログに出すだけ
func NewPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (publisher.Publisher, error) {
	if cfg.OrderEventsTopicARN == "" {
		return publisher.NewLogPublisher(logger), nil
	}

	client, err := sns.NewClient(ctx, cfg.AWSEndpoint)
	if err != nil {
		return nil, fmt.Errorf("sns client: %w", err)
	}
	return sns.NewPublisher(client, cfg.OrderEventsTopicARN), nil
}
