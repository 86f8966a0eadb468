package publisher

import (
	"context"
	"time"

	repo "shop/internal/repository"

	"go.uber.org/zap"
)

type OutboxPoller struct {
	interval    time.Duration
	batchSize   int
	maxAttempts int
	repo        repo.OutboxRepository
	publisher   Publisher
	logger      *zap.Logger
	now         func() time.Time
}

func NewOutboxPoller(outbox repo.OutboxRepository, publisher Publisher, interval time.Duration, maxAttempts int, logger *zap.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxPoller{
		interval:    interval,
		batchSize:   100,
		maxAttempts: maxAttempts,
		repo:        outbox,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

// ctxが閉じるまで回す
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// 未配信を1バッチ配信して、配信できた件数を返す
// 失敗したものは次回に回す（少なくとも1回は届く）。
func (p *OutboxPoller) Flush(ctx context.Context) int {
	events, err := p.repo.ListUnpublished(ctx, p.batchSize, p.maxAttempts)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publisher.Publish(ctx, event); err != nil {
			p.logger.Warn("failed to publish outbox event",
				zap.Int64("id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				p.logger.Error("failed to record outbox failure", zap.Int64("id", event.ID), zap.Error(markErr))
				continue
			}
			if p.maxAttempts > 0 && event.Attempts+1 >= p.maxAttempts {
				p.logger.Error("outbox event gave up after max attempts",
					zap.Int64("id", event.ID),
					zap.String("event_type", event.EventType),
					zap.Int("attempts", event.Attempts+1),
				)
			}
			continue
		}

		if err := p.repo.MarkPublished(ctx, event.ID, p.now()); err != nil {
			p.logger.Error("failed to mark outbox event as published", zap.Int64("id", event.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published
}
