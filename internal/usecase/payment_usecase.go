package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/model"
	"shop/internal/gateway"
	repo "shop/internal/repository"

	"go.uber.org/zap"
)

// PaymentUsecase は手動確定と返金。
type PaymentUsecase struct {
	tx       repo.TransactionManager
	payments repo.PaymentIntentRepository
	refunds  repo.RefundRepository
	gateway  gateway.PaymentGateway
	settler  *PaymentSettler
	logger   *zap.Logger
	now      func() time.Time

	manualConfirmEnabled bool
	gatewayTimeout       time.Duration
}

type PaymentConfig struct {
	ManualConfirmEnabled bool
	GatewayTimeout       time.Duration
}

func NewPaymentUsecase(
	tx repo.TransactionManager,
	payments repo.PaymentIntentRepository,
	refunds repo.RefundRepository,
	gw gateway.PaymentGateway,
	settler *PaymentSettler,
	cfg PaymentConfig,
	logger *zap.Logger,
) *PaymentUsecase {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	return &PaymentUsecase{
		tx:                   tx,
		payments:             payments,
		refunds:              refunds,
		gateway:              gw,
		settler:              settler,
		logger:               logger,
		now:                  time.Now,
		manualConfirmEnabled: cfg.ManualConfirmEnabled,
		gatewayTimeout:       cfg.GatewayTimeout,
	}
}

type ConfirmPaymentInput struct {
	IntentID string
	// 任意。order_first で注文番号と突き合わせる
	OrderNumber string
}

type ConfirmPaymentOutput struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	OrderNumber     string `json:"order_number,omitempty"`
}

// ConfirmPayment はwebhookを待たずに成功として確定する（開発・運用向け）。
// 設定で有効なときだけ使える。
func (u *PaymentUsecase) ConfirmPayment(ctx context.Context, in ConfirmPaymentInput) (ConfirmPaymentOutput, error) {
	if !u.manualConfirmEnabled {
		return ConfirmPaymentOutput{}, wrapHTTPError(http.StatusForbidden, ErrManualConfirmOff, "manual confirmation disabled")
	}
	intentID := strings.TrimSpace(in.IntentID)
	if intentID == "" {
		return ConfirmPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_intent_id")
	}
	orderNumber := strings.TrimSpace(in.OrderNumber)

	var res SettleResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if orderNumber != "" {
			if err := checkOrderNumber(ctx, r, intentID, orderNumber); err != nil {
				return err
			}
		}

		var err error
		res, err = u.settler.Succeed(ctx, r, intentID)
		if err != nil {
			return err
		}

		switch res.Outcome {
		case SettleUnknownIntent:
			return notFound("payment")
		case SettleAlreadyTerminal:
			if res.Intent.Status == model.PaymentStatusSucceeded {
				return wrapHTTPError(http.StatusConflict, ErrOrderAlreadyPaid, "order already paid")
			}
			return wrapHTTPError(http.StatusConflict, ErrPaymentNotPending, "payment already failed")
		}
		return nil
	})
	if err != nil {
		if _, ok := AsHTTPError(err); ok {
			return ConfirmPaymentOutput{}, err
		}
		u.logger.Error("manual confirmation failed", zap.String("intent_id", intentID), zap.Error(err))
		return ConfirmPaymentOutput{}, dbError(err)
	}

	u.logger.Info("payment confirmed manually",
		zap.String("intent_id", intentID),
		zap.String("order_number", res.OrderNumber),
	)
	return ConfirmPaymentOutput{
		PaymentIntentID: intentID,
		Status:          string(model.PaymentStatusSucceeded),
		OrderNumber:     res.OrderNumber,
	}, nil
}

// 指定の注文番号がこのintentの注文か（違えば404）
func checkOrderNumber(ctx context.Context, r repo.TxRepos, intentID string, orderNumber string) error {
	pi, err := r.PaymentIntents().FindByIntentIDForUpdate(ctx, intentID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("payment")
	}
	if err != nil {
		return dbError(err)
	}
	if pi.OrderID == nil {
		return notFound("order")
	}
	o, err := r.Orders().FindByID(ctx, *pi.OrderID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && o.OrderNumber != orderNumber) {
		return notFound("order")
	}
	if err != nil {
		return dbError(err)
	}
	return nil
}

// ゲートウェイが受け付ける理由
var refundReasons = map[string]bool{
	"":                      true,
	"duplicate":             true,
	"fraudulent":            true,
	"requested_by_customer": true,
}

type RefundInput struct {
	// nilなら残額すべて
	Amount *int64
	Reason string
}

type RefundOutput struct {
	RefundID       string `json:"refund_id"`
	IntentID       string `json:"payment_intent_id"`
	Amount         int64  `json:"amount"`
	Status         string `json:"status"`
	RefundedAmount int64  `json:"refunded_amount"`
}

// Refund は成功済みの決済を（一部）返金する。管理者操作なので監査ログを残す。
func (u *PaymentUsecase) Refund(ctx context.Context, actorAdminUserID int64, intentID string, in RefundInput) (RefundOutput, error) {
	if actorAdminUserID <= 0 {
		return RefundOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return RefundOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_intent_id")
	}
	if in.Amount != nil && *in.Amount <= 0 {
		return RefundOutput{}, NewHTTPError(http.StatusBadRequest, "invalid amount")
	}
	if !refundReasons[in.Reason] {
		return RefundOutput{}, NewHTTPError(http.StatusBadRequest, "invalid reason")
	}

	pi, err := u.payments.FindByIntentID(ctx, intentID)
	if errors.Is(err, repo.ErrNotFound) {
		return RefundOutput{}, notFound("payment")
	}
	if err != nil {
		return RefundOutput{}, dbError(err)
	}
	if pi.Status != model.PaymentStatusSucceeded {
		return RefundOutput{}, wrapHTTPError(http.StatusConflict, ErrRefundNotAllowed, "payment not succeeded")
	}

	existing, err := u.refunds.ListByIntentID(ctx, intentID)
	if err != nil {
		return RefundOutput{}, dbError(err)
	}
	refunded := model.SumRefunded(existing)
	remaining := pi.Amount - refunded
	if remaining <= 0 {
		return RefundOutput{}, wrapHTTPError(http.StatusConflict, ErrRefundNotAllowed, "payment already fully refunded")
	}
	amount := remaining
	if in.Amount != nil {
		if *in.Amount > remaining {
			return RefundOutput{}, wrapHTTPError(http.StatusBadRequest, ErrRefundNotAllowed, "refund amount exceeds remaining")
		}
		amount = *in.Amount
	}

	gctx, cancel := context.WithTimeout(ctx, u.gatewayTimeout)
	defer cancel()

	gr, err := u.gateway.CreateRefund(gctx, gateway.RefundRequest{
		IntentID: intentID,
		Amount:   &amount,
		Reason:   in.Reason,
	})
	if errors.Is(err, gateway.ErrRejected) {
		return RefundOutput{}, wrapHTTPError(http.StatusBadRequest, err, "refund rejected")
	}
	if err != nil {
		u.logger.Error("create refund failed", zap.String("intent_id", intentID), zap.Error(err))
		return RefundOutput{}, wrapHTTPError(http.StatusBadGateway, err, "refund failed")
	}

	// ゲートウェイ側はもう返金済み。ここで失敗しても照合で拾う。
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Refunds().Create(ctx, toRefundModel(gr, u.now())); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			return err
		}

		var orderID int64
		if pi.OrderID != nil {
			orderID = *pi.OrderID
		}
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionCreateRefund,
			ResourceType: model.AuditResourcePayment,
			ResourceID:   orderID,
			ResourceKey:  intentID,
			BeforeJSON:   fmt.Sprintf(`{"refunded_amount":%d}`, refunded),
			AfterJSON:    fmt.Sprintf(`{"refunded_amount":%d,"refund_id":%q}`, refunded+gr.Amount, gr.ID),
			CreatedAt:    u.now(),
		})
	})
	if err != nil {
		u.logger.Error("refund recorded at gateway but not locally",
			zap.String("intent_id", intentID),
			zap.String("refund_id", gr.ID),
			zap.Error(err),
		)
	}

	return RefundOutput{
		RefundID:       gr.ID,
		IntentID:       intentID,
		Amount:         gr.Amount,
		Status:         gr.Status,
		RefundedAmount: refunded + gr.Amount,
	}, nil
}

type ReconcileReport struct {
	// ゲートウェイから読んだ返金の件数
	Scanned  int `json:"scanned"`
	Inserted int `json:"inserted"`
	// ローカルに対応するintentが無いもの（別システムの決済など）
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
	Pages     int `json:"pages"`
}

const reconcilePageSize = 100

var errUnknownRefundIntent = errors.New("refund for unknown payment intent")

// ReconcileRefunds は since 以降にゲートウェイで作られた返金のうち、ローカルに無いものを取り込む。
// intentの更新日時では選ばない（返金してもintentの行は変わらないため）。
// ページの取得に失敗したらそこで止めてエラーを返す（途中までの件数は rep に入る）。
func (u *PaymentUsecase) ReconcileRefunds(ctx context.Context, since time.Time) (ReconcileReport, error) {
	var rep ReconcileReport
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		page, err := u.listRefundPage(ctx, since, cursor)
		if err != nil {
			u.logger.Error("refund reconciliation aborted",
				zap.Time("since", since),
				zap.String("starting_after", cursor),
				zap.Int("scanned", rep.Scanned),
				zap.Error(err),
			)
			return rep, err
		}
		rep.Pages++

		for _, gr := range page.Refunds {
			rep.Scanned++
			inserted, err := u.recordGatewayRefund(ctx, gr)
			switch {
			case errors.Is(err, errUnknownRefundIntent):
				rep.Unmatched++
				u.logger.Warn("gateway refund has no local payment",
					zap.String("refund_id", gr.ID),
					zap.String("intent_id", gr.IntentID),
				)
			case err != nil:
				rep.Failed++
				u.logger.Warn("refund reconciliation failed",
					zap.String("refund_id", gr.ID),
					zap.String("intent_id", gr.IntentID),
					zap.Error(err),
				)
			case inserted:
				rep.Inserted++
				u.logger.Info("refund recorded from gateway",
					zap.String("refund_id", gr.ID),
					zap.String("intent_id", gr.IntentID),
					zap.Int64("amount", gr.Amount),
				)
			}
		}

		if !page.HasMore || len(page.Refunds) == 0 {
			break
		}
		cursor = page.Refunds[len(page.Refunds)-1].ID
	}

	u.logger.Info("refund reconciliation finished",
		zap.Time("since", since),
		zap.Int("pages", rep.Pages),
		zap.Int("scanned", rep.Scanned),
		zap.Int("inserted", rep.Inserted),
		zap.Int("unmatched", rep.Unmatched),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

func (u *PaymentUsecase) listRefundPage(ctx context.Context, since time.Time, cursor string) (gateway.RefundPage, error) {
	gctx, cancel := context.WithTimeout(ctx, u.gatewayTimeout)
	defer cancel()

	return u.gateway.ListRefunds(gctx, gateway.RefundListRequest{
		CreatedSince:  since,
		StartingAfter: cursor,
		Limit:         reconcilePageSize,
	})
}

// 既にあれば false
func (u *PaymentUsecase) recordGatewayRefund(ctx context.Context, gr gateway.Refund) (bool, error) {
	if gr.IntentID == "" {
		return false, errUnknownRefundIntent
	}
	if _, err := u.payments.FindByIntentID(ctx, gr.IntentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, errUnknownRefundIntent
		}
		return false, err
	}

	at := gr.Created
	if at.IsZero() {
		at = u.now()
	}
	err := u.refunds.Create(ctx, toRefundModel(gr, at))
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func toRefundModel(gr gateway.Refund, at time.Time) model.Refund {
	return model.Refund{
		GatewayRefundID: gr.ID,
		IntentID:        gr.IntentID,
		Amount:          gr.Amount,
		Status:          gr.Status,
		Reason:          gr.Reason,
		CreatedAt:       at,
	}
}
