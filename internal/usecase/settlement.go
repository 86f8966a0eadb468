package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shop/internal/config"
	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"go.uber.org/zap"
)

type SettleOutcome string

const (
	// PENDING から終端にした
	SettleApplied SettleOutcome = "applied"
	// もう終端だった（何も書いていない）
	SettleAlreadyTerminal SettleOutcome = "already_terminal"
	// ローカルにintentが無い
	SettleUnknownIntent SettleOutcome = "unknown_intent"
)

type SettleResult struct {
	Outcome     SettleOutcome
	Intent      model.PaymentIntent
	OrderID     int64
	OrderNumber string
}

// 行ロック後に条件付き更新が外れた。ロールバックさせる。
var errTransitionLost = errors.New("payment intent transition lost")

// PaymentSettler は PENDING の決済を SUCCEEDED / FAILED に確定させる。
// webhookと手動確定の両方から、同じトランザクションの中で呼ぶ。
type PaymentSettler struct {
	flow           config.CheckoutFlow
	logger         *zap.Logger
	now            func() time.Time
	newOrderNumber func() string

	// 成功時に注文を用意する（方式ごとに1つ）
	settleOrder func(ctx context.Context, r repo.TxRepos, pi model.PaymentIntent) (model.Order, error)
}

func NewPaymentSettler(flow config.CheckoutFlow, logger *zap.Logger) *PaymentSettler {
	s := &PaymentSettler{
		flow:           flow,
		logger:         logger,
		now:            time.Now,
		newOrderNumber: model.NewOrderNumber,
	}
	switch flow {
	case config.FlowOrderFirst:
		s.settleOrder = s.markLinkedOrderPaid
	default:
		s.flow = config.FlowPaymentFirst
		s.settleOrder = s.createOrderFromSnapshot
	}
	return s
}

func (s *PaymentSettler) Flow() config.CheckoutFlow {
	return s.flow
}

// Succeed はトランザクション内で呼ぶ。
// 注文・明細・intent更新・カート削除・outboxを全部同じTxで書く。
func (s *PaymentSettler) Succeed(ctx context.Context, r repo.TxRepos, intentID string) (SettleResult, error) {
	pi, res, err := s.lockPending(ctx, r, intentID)
	if err != nil || res.Outcome != "" {
		return res, err
	}

	order, err := s.settleOrder(ctx, r, pi)
	if err != nil {
		return SettleResult{}, err
	}

	ok, err := r.PaymentIntents().TransitionFromPending(ctx, intentID, model.PaymentStatusSucceeded, &order.ID)
	if err != nil {
		return SettleResult{}, err
	}
	if !ok {
		return SettleResult{}, errTransitionLost
	}

	if _, err := r.Carts().DeleteBySessionID(ctx, pi.SessionID); err != nil {
		return SettleResult{}, err
	}

	if err := writeOutbox(ctx, r, model.OutboxEventOrderPaid, order.OrderNumber, s.now(), map[string]any{
		"order_number":   order.OrderNumber,
		"intent_id":      pi.IntentID,
		"total_amount":   order.TotalAmount,
		"currency":       order.Currency,
		"customer_email": order.Customer.Email,
	}); err != nil {
		return SettleResult{}, err
	}

	pi.Status = model.PaymentStatusSucceeded
	pi.OrderID = &order.ID
	return SettleResult{
		Outcome:     SettleApplied,
		Intent:      pi,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}, nil
}

// Fail は intent を FAILED にする。payment_first では注文を作らない。
func (s *PaymentSettler) Fail(ctx context.Context, r repo.TxRepos, intentID string) (SettleResult, error) {
	pi, res, err := s.lockPending(ctx, r, intentID)
	if err != nil || res.Outcome != "" {
		return res, err
	}

	ok, err := r.PaymentIntents().TransitionFromPending(ctx, intentID, model.PaymentStatusFailed, nil)
	if err != nil {
		return SettleResult{}, err
	}
	if !ok {
		return SettleResult{}, errTransitionLost
	}

	out := SettleResult{Outcome: SettleApplied, Intent: pi}
	out.Intent.Status = model.PaymentStatusFailed

	// order_first: 紐づく注文も FAILED
	if pi.OrderID != nil {
		o, err := r.Orders().FindByID(ctx, *pi.OrderID)
		if err != nil {
			return SettleResult{}, err
		}
		if o.Status.CanTransitionTo(model.OrderStatusFailed) {
			if err := r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusFailed); err != nil {
				return SettleResult{}, err
			}
		}
		out.OrderID = o.ID
		out.OrderNumber = o.OrderNumber
	}

	payload := map[string]any{
		"intent_id":  pi.IntentID,
		"session_id": pi.SessionID,
		"amount":     pi.Amount,
		"currency":   pi.Currency,
	}
	if out.OrderNumber != "" {
		payload["order_number"] = out.OrderNumber
	}
	if err := writeOutbox(ctx, r, model.OutboxEventPaymentFailed, pi.IntentID, s.now(), payload); err != nil {
		return SettleResult{}, err
	}
	return out, nil
}

// 行ロックを取って PENDING か確かめる。
// PENDING なら res.Outcome は空。
func (s *PaymentSettler) lockPending(ctx context.Context, r repo.TxRepos, intentID string) (model.PaymentIntent, SettleResult, error) {
	pi, err := r.PaymentIntents().FindByIntentIDForUpdate(ctx, intentID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.PaymentIntent{}, SettleResult{Outcome: SettleUnknownIntent}, nil
	}
	if err != nil {
		return model.PaymentIntent{}, SettleResult{}, err
	}
	if pi.Status.IsTerminal() {
		res := SettleResult{Outcome: SettleAlreadyTerminal, Intent: pi}
		if pi.OrderID != nil {
			res.OrderID = *pi.OrderID
		}
		return pi, res, nil
	}
	return pi, SettleResult{}, nil
}

// payment_first: スナップショットだけから PAID 注文を作る
func (s *PaymentSettler) createOrderFromSnapshot(ctx context.Context, r repo.TxRepos, pi model.PaymentIntent) (model.Order, error) {
	meta, err := model.DecodeCheckoutMetadata(pi.Metadata)
	if err != nil {
		return model.Order{}, fmt.Errorf("intent %s: %w", pi.IntentID, err)
	}
	if meta.MissingNames() {
		if err := fillProductNames(ctx, r.Products(), &meta); err != nil {
			return model.Order{}, err
		}
	}
	if meta.Total() != pi.Amount {
		return model.Order{}, fmt.Errorf("intent %s: %w (snapshot=%d amount=%d)", pi.IntentID, ErrSnapshotMismatch, meta.Total(), pi.Amount)
	}

	now := s.now()
	intentID := pi.IntentID
	order := model.Order{
		OrderNumber:     s.newOrderNumber(),
		Status:          model.OrderStatusPaid,
		TotalAmount:     pi.Amount,
		Currency:        pi.Currency,
		PaymentIntentID: &intentID,
		Customer:        meta.Customer,
		PaidAt:          &now,
	}

	id, err := r.Orders().Create(ctx, order)
	if err != nil {
		return model.Order{}, err
	}
	order.ID = id

	if err := r.OrderItems().CreateBulk(ctx, id, meta.OrderItems()); err != nil {
		return model.Order{}, err
	}
	return order, nil
}

// order_first: チェックアウト時に作った注文を PAID にする
func (s *PaymentSettler) markLinkedOrderPaid(ctx context.Context, r repo.TxRepos, pi model.PaymentIntent) (model.Order, error) {
	if pi.OrderID == nil {
		return model.Order{}, fmt.Errorf("intent %s has no linked order", pi.IntentID)
	}

	o, err := r.Orders().FindByID(ctx, *pi.OrderID)
	if err != nil {
		return model.Order{}, err
	}
	if o.TotalAmount != pi.Amount {
		return model.Order{}, fmt.Errorf("intent %s: %w (order=%d amount=%d)", pi.IntentID, ErrSnapshotMismatch, o.TotalAmount, pi.Amount)
	}

	switch {
	case o.Status == model.OrderStatusPaid:
	case o.Status.CanTransitionTo(model.OrderStatusPaid):
		now := s.now()
		if err := r.Orders().MarkPaid(ctx, o.ID, now); err != nil {
			return model.Order{}, err
		}
		o.Status = model.OrderStatusPaid
		o.PaidAt = &now
	default:
		// 決済前に取り消された注文。お金は動いているので intent は確定させる。
		s.logger.Warn("payment succeeded for order that cannot be paid",
			zap.String("intent_id", pi.IntentID),
			zap.String("order_number", o.OrderNumber),
			zap.String("order_status", string(o.Status)),
		)
	}
	return o, nil
}

// v1スナップショットには商品名が無い
func fillProductNames(ctx context.Context, products repo.ProductRepository, meta *model.CheckoutMetadata) error {
	for i, it := range meta.Items {
		if it.ProductName != "" {
			continue
		}
		p, err := products.FindByID(ctx, it.ProductID)
		switch {
		case err == nil:
			meta.Items[i].ProductName = p.Name
		case errors.Is(err, repo.ErrNotFound):
			meta.Items[i].ProductName = fmt.Sprintf("product #%d", it.ProductID)
		default:
			return err
		}
	}
	return nil
}

func writeOutbox(ctx context.Context, r repo.TxRepos, eventType string, aggregateID string, at time.Time, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.Outbox().Create(ctx, model.OutboxEvent{
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     body,
		CreatedAt:   at,
	})
}
