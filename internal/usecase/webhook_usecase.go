package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"shop/internal/domain/model"
	"shop/internal/gateway"
	repo "shop/internal/repository"

	"go.uber.org/zap"
)

type WebhookResult string

const (
	WebhookApplied WebhookResult = "applied"
	// 同じイベントIDをもう処理していた
	WebhookDuplicate WebhookResult = "duplicate"
	// intentがもう終端だった
	WebhookNoop WebhookResult = "noop"
	// ローカルに無いintent
	WebhookUnknownIntent WebhookResult = "unknown_intent"
	// 扱わない種類のイベント
	WebhookIgnored WebhookResult = "ignored"
)

// 同時配信で後から来た方（ロールバックさせる）
var errEventAlreadyRecorded = errors.New("event already recorded")

// WebhookUsecase は署名検証済みのイベントを1回だけ適用する。
type WebhookUsecase struct {
	tx      repo.TransactionManager
	settler *PaymentSettler
	logger  *zap.Logger
	now     func() time.Time
}

func NewWebhookUsecase(tx repo.TransactionManager, settler *PaymentSettler, logger *zap.Logger) *WebhookUsecase {
	return &WebhookUsecase{
		tx:      tx,
		settler: settler,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleEvent はイベントIDの記録と状態変更を同じトランザクションで行う。
// エラーを返したときは何もコミットされていない（ゲートウェイの再送で再実行される）。
func (u *WebhookUsecase) HandleEvent(ctx context.Context, ev gateway.Event) (WebhookResult, error) {
	if ev.ID == "" {
		return "", wrapHTTPError(http.StatusBadRequest, gateway.ErrMalformedEvent, "invalid event")
	}
	if ev.Type != gateway.EventUnknown && ev.IntentID == "" {
		return "", wrapHTTPError(http.StatusBadRequest, gateway.ErrMalformedEvent, "invalid event")
	}

	var result WebhookResult
	var settled SettleResult

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		seen, err := r.ProcessedEvents().Exists(ctx, ev.ID)
		if err != nil {
			return err
		}
		if seen {
			result = WebhookDuplicate
			return nil
		}

		err = r.ProcessedEvents().Create(ctx, model.ProcessedEvent{
			ID:          ev.ID,
			Type:        ev.RawType,
			ProcessedAt: u.now(),
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return errEventAlreadyRecorded
		}
		if err != nil {
			return err
		}

		switch ev.Type {
		case gateway.EventPaymentSucceeded:
			settled, err = u.settler.Succeed(ctx, r, ev.IntentID)
		case gateway.EventPaymentFailed:
			settled, err = u.settler.Fail(ctx, r, ev.IntentID)
		default:
			result = WebhookIgnored
			return nil
		}
		if err != nil {
			return err
		}

		switch settled.Outcome {
		case SettleApplied:
			result = WebhookApplied
		case SettleAlreadyTerminal:
			result = WebhookNoop
		case SettleUnknownIntent:
			result = WebhookUnknownIntent
		}
		return nil
	})

	if errors.Is(err, errEventAlreadyRecorded) {
		result = WebhookDuplicate
		err = nil
	}
	if err != nil {
		u.logger.Error("webhook processing failed",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.RawType),
			zap.String("intent_id", ev.IntentID),
			zap.Error(err),
		)
		return "", err
	}

	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.RawType),
		zap.String("intent_id", ev.IntentID),
		zap.String("result", string(result)),
	}
	switch result {
	case WebhookApplied:
		if settled.OrderNumber != "" {
			fields = append(fields, zap.String("order_number", settled.OrderNumber))
		}
		if ev.Amount > 0 && ev.Amount != settled.Intent.Amount {
			u.logger.Warn("webhook amount differs from local intent",
				zap.String("intent_id", ev.IntentID),
				zap.Int64("event_amount", ev.Amount),
				zap.Int64("intent_amount", settled.Intent.Amount),
			)
		}
		u.logger.Info("webhook applied", fields...)
	case WebhookUnknownIntent:
		u.logger.Warn("webhook for unknown payment intent", fields...)
	default:
		u.logger.Info("webhook skipped", fields...)
	}
	return result, nil
}
