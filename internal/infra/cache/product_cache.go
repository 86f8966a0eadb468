package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

// ProductCache はカタログ読み取りにRedisを被せる。
// カート表示だけで使う。在庫チェックとチェックアウトは元のrepositoryを読む。
type ProductCache struct {
	client  *redis.Client
	inner   repo.ProductRepository
	baseTTL time.Duration
	logger  *zap.Logger
}

func NewProductCache(client *redis.Client, inner repo.ProductRepository, baseTTL time.Duration, logger *zap.Logger) *ProductCache {
	if baseTTL <= 0 {
		baseTTL = time.Minute
	}
	return &ProductCache{
		client:  client,
		inner:   inner,
		baseTTL: baseTTL,
		logger:  logger,
	}
}

// Redisが落ちていても元のrepositoryで返す
func (c *ProductCache) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, err := c.get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("product cache read failed", zap.Int64("product_id", id), zap.Error(err))
	}

	p, err = c.inner.FindByID(ctx, id)
	if err != nil {
		return model.Product{}, err
	}

	if err := c.set(ctx, p); err != nil {
		c.logger.Warn("product cache write failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return p, nil
}

func (c *ProductCache) Invalidate(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *ProductCache) get(ctx context.Context, id int64) (model.Product, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Product{}, ErrCacheMiss
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("redis get failed: %w", err)
	}

	var p model.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Product{}, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return p, nil
}

func (c *ProductCache) set(ctx context.Context, p model.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	// 同時に切れないようにずらす
	jitter := time.Duration(rand.Int63n(int64(c.baseTTL)/5 + 1))
	if err := c.client.Set(ctx, cacheKey(p.ID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(id int64) string {
	return fmt.Sprintf("catalog:product:%d", id)
}
