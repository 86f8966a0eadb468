package publisher

import (
	"context"

	"shop/internal/domain/model"

	"go.uber.org/zap"
)

// outboxイベントの配信先
type Publisher interface {
	Publish(ctx context.Context, event model.OutboxEvent) error
}

// トピック未設定のときはログに出すだけ
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event model.OutboxEvent) error {
	p.logger.Info("outbox event",
		zap.Int64("id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
		zap.ByteString("payload", event.Payload),
	)
	return nil
}
