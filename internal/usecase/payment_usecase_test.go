package usecase_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"shop/internal/config"
	"shop/internal/domain/model"
	"shop/internal/gateway"
	"shop/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPayment(l *Ledger, gw gateway.PaymentGateway, flow config.CheckoutFlow, manual bool) *usecase.PaymentUsecase {
	d := l.Direct()
	return usecase.NewPaymentUsecase(
		l, d.PaymentIntents(), d.Refunds(), gw,
		usecase.NewPaymentSettler(flow, zap.NewNop()),
		usecase.PaymentConfig{ManualConfirmEnabled: manual, GatewayTimeout: time.Second},
		zap.NewNop(),
	)
}

func int64p(v int64) *int64 { return &v }

// =====================
// ConfirmPayment
// =====================

func TestConfirmPayment_Disabled(t *testing.T) {
	l := NewLedger()
	seedPendingIntent(t, l, "pi_1", "sess-1", twoLines...)
	uc := newPayment(l, new(GatewayMock), config.FlowPaymentFirst, false)

	_, err := uc.ConfirmPayment(context.Background(), usecase.ConfirmPaymentInput{IntentID: "pi_1"})
	assert.ErrorIs(t, err, usecase.ErrManualConfirmOff)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Status)
	assert.Empty(t, l.Orders())
}

func TestConfirmPayment_SameOutcomeAsWebhook(t *testing.T) {
	l := NewLedger()
	l.AddCartLine("sess-1", 1, 2, 1000)
	seedPendingIntent(t, l, "pi_1", "sess-1", twoLines...)
	uc := newPayment(l, new(GatewayMock), config.FlowPaymentFirst, true)

	out, err := uc.ConfirmPayment(context.Background(), usecase.ConfirmPaymentInput{IntentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, "SUCCEEDED", out.Status)
	assert.NotEmpty(t, out.OrderNumber)

	orders := l.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, out.OrderNumber, orders[0].OrderNumber)
	assert.Equal(t, int64(2450), orders[0].TotalAmount)
	assert.False(t, l.HasCart("sess-1"))

	// 後から届いたwebhookは何もしない
	res, err := newWebhook(l, config.FlowPaymentFirst).HandleEvent(context.Background(), succeeded("evt_1", "pi_1"))
	require.NoError(t, err)
	assert.Equal(t, usecase.WebhookNoop, res)
	assert.Len(t, l.Orders(), 1)
}

func TestConfirmPayment_AlreadySettled(t *testing.T) {
	l := NewLedger()
	seedPendingIntent(t, l, "pi_ok", "sess-1", twoLines...)
	seedPendingIntent(t, l, "pi_ng", "sess-2", twoLines...)
	uc := newPayment(l, new(GatewayMock), config.FlowPaymentFirst, true)
	ctx := context.Background()

	_, err := uc.ConfirmPayment(ctx, usecase.ConfirmPaymentInput{IntentID: "pi_ok"})
	require.NoError(t, err)
	_, err = uc.ConfirmPayment(ctx, usecase.ConfirmPaymentInput{IntentID: "pi_ok"})
	assert.ErrorIs(t, err, usecase.ErrOrderAlreadyPaid)

	_, err = newWebhook(l, config.FlowPaymentFirst).HandleEvent(ctx, failed("evt_1", "pi_ng"))
	require.NoError(t, err)
	_, err = uc.ConfirmPayment(ctx, usecase.ConfirmPaymentInput{IntentID: "pi_ng"})
	assert.ErrorIs(t, err, usecase.ErrPaymentNotPending)

	assert.Len(t, l.Orders(), 1)
}

func TestConfirmPayment_UnknownIntent(t *testing.T) {
	uc := newPayment(NewLedger(), new(GatewayMock), config.FlowPaymentFirst, true)

	_, err := uc.ConfirmPayment(context.Background(), usecase.ConfirmPaymentInput{IntentID: "pi_x"})
	assertErrContains(t, err, "payment not found")

	_, err = uc.ConfirmPayment(context.Background(), usecase.ConfirmPaymentInput{IntentID: " "})
	assertErrContains(t, err, "invalid payment_intent_id")
}

func TestConfirmPayment_OrderFirst_OrderNumberMustMatch(t *testing.T) {
	l := NewLedger()
	seedLinkedOrder(t, l, "pi_1")
	uc := newPayment(l, new(GatewayMock), config.FlowOrderFirst, true)

	_, err := uc.ConfirmPayment(context.Background(), usecase.ConfirmPaymentInput{IntentID: "pi_1", OrderNumber: "ORD-FFFFFFFFFF"})
	assertErrContains(t, err, "order not found")
	assert.Equal(t, model.PaymentStatusPending, l.Intent("pi_1").Status)

	out, err := uc.ConfirmPayment(context.Background(), usecase.ConfirmPaymentInput{IntentID: "pi_1", OrderNumber: "ORD-00000000AA"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-00000000AA", out.OrderNumber)
	assert.Equal(t, model.OrderStatusPaid, l.Orders()[0].Status)
}

// =====================
// Refund
// =====================

func seedSucceeded(t *testing.T, l *Ledger) {
	t.Helper()
	seedPendingIntent(t, l, "pi_1", "sess-1", twoLines...)
	_, err := newWebhook(l, config.FlowPaymentFirst).HandleEvent(context.Background(), succeeded("evt_1", "pi_1"))
	require.NoError(t, err)
}

func TestRefund_Partial_RecordsAndAudits(t *testing.T) {
	l := NewLedger()
	seedSucceeded(t, l)

	gw := new(GatewayMock)
	gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(req gateway.RefundRequest) bool {
		return req.IntentID == "pi_1" && req.Amount != nil && *req.Amount == 450 && req.Reason == "requested_by_customer"
	})).Return(gateway.Refund{ID: "re_1", IntentID: "pi_1", Amount: 450, Status: "succeeded", Reason: "requested_by_customer"}, nil)
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)

	out, err := uc.Refund(context.Background(), 7, "pi_1", usecase.RefundInput{Amount: int64p(450), Reason: "requested_by_customer"})
	require.NoError(t, err)
	assert.Equal(t, "re_1", out.RefundID)
	assert.Equal(t, int64(450), out.RefundedAmount)

	refunds := l.Refunds()
	require.Len(t, refunds, 1)
	assert.Equal(t, "re_1", refunds[0].GatewayRefundID)

	audits := l.Audits()
	require.Len(t, audits, 1)
	a := audits[0]
	assert.Equal(t, int64(7), a.ActorUserID)
	assert.Equal(t, model.AuditActionCreateRefund, a.Action)
	assert.Equal(t, model.AuditResourcePayment, a.ResourceType)
	assert.Equal(t, "pi_1", a.ResourceKey)
	assert.Equal(t, l.Orders()[0].ID, a.ResourceID)
	assert.Equal(t, `{"refunded_amount":0}`, a.BeforeJSON)
	assert.Equal(t, `{"refunded_amount":450,"refund_id":"re_1"}`, a.AfterJSON)
}

func TestRefund_DefaultsToRemaining(t *testing.T) {
	l := NewLedger()
	seedSucceeded(t, l)
	l.View(func(s *ledgerState) {
		s.refunds = append(s.refunds, model.Refund{GatewayRefundID: "re_0", IntentID: "pi_1", Amount: 450, Status: "succeeded"})
	})

	gw := new(GatewayMock)
	gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(req gateway.RefundRequest) bool {
		return req.Amount != nil && *req.Amount == 2000
	})).Return(gateway.Refund{ID: "re_1", IntentID: "pi_1", Amount: 2000, Status: "succeeded"}, nil)
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)

	out, err := uc.Refund(context.Background(), 7, "pi_1", usecase.RefundInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(2450), out.RefundedAmount)

	// もう残っていない
	_, err = uc.Refund(context.Background(), 7, "pi_1", usecase.RefundInput{})
	assertErrContains(t, err, "already fully refunded")
}

func TestRefund_Validation(t *testing.T) {
	l := NewLedger()
	seedSucceeded(t, l)
	seedPendingIntent(t, l, "pi_pending", "sess-2", twoLines...)
	gw := new(GatewayMock)
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)
	ctx := context.Background()

	_, err := uc.Refund(ctx, 0, "pi_1", usecase.RefundInput{})
	assertErrContains(t, err, "unauthorized")

	_, err = uc.Refund(ctx, 7, "pi_1", usecase.RefundInput{Amount: int64p(0)})
	assertErrContains(t, err, "invalid amount")

	_, err = uc.Refund(ctx, 7, "pi_1", usecase.RefundInput{Reason: "because"})
	assertErrContains(t, err, "invalid reason")

	_, err = uc.Refund(ctx, 7, "pi_1", usecase.RefundInput{Amount: int64p(5000)})
	assertErrContains(t, err, "exceeds remaining")

	_, err = uc.Refund(ctx, 7, "pi_pending", usecase.RefundInput{})
	assert.ErrorIs(t, err, usecase.ErrRefundNotAllowed)

	_, err = uc.Refund(ctx, 7, "pi_none", usecase.RefundInput{})
	assertErrContains(t, err, "payment not found")

	gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestRefund_GatewayErrors(t *testing.T) {
	l := NewLedger()
	seedSucceeded(t, l)

	gw := new(GatewayMock)
	gw.On("CreateRefund", mock.Anything, mock.Anything).Return(gateway.Refund{}, gateway.ErrRejected).Once()
	gw.On("CreateRefund", mock.Anything, mock.Anything).Return(gateway.Refund{}, gateway.ErrGatewayUnavailable).Once()
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)

	_, err := uc.Refund(context.Background(), 7, "pi_1", usecase.RefundInput{})
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)

	_, err = uc.Refund(context.Background(), 7, "pi_1", usecase.RefundInput{})
	he, ok = usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, he.Status)

	assert.Empty(t, l.Refunds())
	assert.Empty(t, l.Audits())
}

// =====================
// ReconcileRefunds
// =====================

func listReq(since time.Time, cursor string) interface{} {
	return mock.MatchedBy(func(req gateway.RefundListRequest) bool {
		return req.CreatedSince.Equal(since) && req.StartingAfter == cursor && req.Limit > 0
	})
}

func TestReconcileRefunds_InsertsMissingOnly(t *testing.T) {
	l := NewLedger()
	seedSucceeded(t, l)
	l.View(func(s *ledgerState) {
		s.refunds = append(s.refunds, model.Refund{GatewayRefundID: "re_1", IntentID: "pi_1", Amount: 100, Status: "succeeded"})
	})

	since := time.Now().Add(-time.Hour)
	created := time.Now().Add(-10 * time.Minute).Truncate(time.Second)
	gw := new(GatewayMock)
	gw.On("ListRefunds", mock.Anything, listReq(since, "")).Return(gateway.RefundPage{Refunds: []gateway.Refund{
		{ID: "re_1", IntentID: "pi_1", Amount: 100, Status: "succeeded"},
		{ID: "re_2", IntentID: "pi_1", Amount: 200, Status: "succeeded", Created: created},
	}}, nil)
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)

	rep, err := uc.ReconcileRefunds(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, usecase.ReconcileReport{Scanned: 2, Inserted: 1, Pages: 1}, rep)

	refunds := l.Refunds()
	require.Len(t, refunds, 2)
	assert.Equal(t, "re_2", refunds[1].GatewayRefundID)
	assert.True(t, refunds[1].CreatedAt.Equal(created))

	// 2回目は何も入らない
	rep, err = uc.ReconcileRefunds(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Inserted)
	assert.Len(t, l.Refunds(), 2)
}

// ローカルのintent件数に関係なく、ゲートウェイのページを最後までたどる
func TestReconcileRefunds_FollowsGatewayPages(t *testing.T) {
	l := NewLedger()
	for i := 1; i <= 501; i++ {
		l.AddIntent(model.PaymentIntent{
			IntentID:  fmt.Sprintf("pi_%d", i),
			Amount:    1000,
			Currency:  "jpy",
			Status:    model.PaymentStatusSucceeded,
			SessionID: "sess-1",
		})
	}

	since := time.Now().Add(-24 * time.Hour)
	gw := new(GatewayMock)
	gw.On("ListRefunds", mock.Anything, listReq(since, "")).Return(gateway.RefundPage{
		Refunds: []gateway.Refund{{ID: "re_a", IntentID: "pi_3", Amount: 100, Status: "succeeded"}},
		HasMore: true,
	}, nil).Once()
	gw.On("ListRefunds", mock.Anything, listReq(since, "re_a")).Return(gateway.RefundPage{
		Refunds: []gateway.Refund{{ID: "re_b", IntentID: "pi_501", Amount: 300, Status: "succeeded"}},
	}, nil).Once()
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)

	rep, err := uc.ReconcileRefunds(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, usecase.ReconcileReport{Scanned: 2, Inserted: 2, Pages: 2}, rep)
	gw.AssertExpectations(t)

	refunds := l.Refunds()
	require.Len(t, refunds, 2)
	assert.Equal(t, "pi_501", refunds[1].IntentID)
	assert.Equal(t, int64(300), refunds[1].Amount)
}

// 返金してもintentの行は更新されないので、古いintentでも拾う
func TestReconcileRefunds_IntentUpdatedBeforeSince(t *testing.T) {
	l := NewLedger()
	l.AddIntent(model.PaymentIntent{
		IntentID:  "pi_old",
		Amount:    5000,
		Currency:  "jpy",
		Status:    model.PaymentStatusSucceeded,
		SessionID: "sess-old",
		UpdatedAt: time.Now().Add(-72 * time.Hour),
	})

	since := time.Now().Add(-24 * time.Hour)
	gw := new(GatewayMock)
	gw.On("ListRefunds", mock.Anything, listReq(since, "")).Return(gateway.RefundPage{
		Refunds: []gateway.Refund{{ID: "re_old", IntentID: "pi_old", Amount: 5000, Status: "succeeded", Created: time.Now().Add(-time.Hour)}},
	}, nil)
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)

	rep, err := uc.ReconcileRefunds(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)

	refunds := l.Refunds()
	require.Len(t, refunds, 1)
	assert.Equal(t, "pi_old", refunds[0].IntentID)
}

func TestReconcileRefunds_UnknownIntentCounted(t *testing.T) {
	l := NewLedger()

	since := time.Now().Add(-time.Hour)
	gw := new(GatewayMock)
	gw.On("ListRefunds", mock.Anything, listReq(since, "")).Return(gateway.RefundPage{
		Refunds: []gateway.Refund{
			{ID: "re_x", IntentID: "pi_elsewhere", Amount: 100},
			{ID: "re_y", Amount: 100},
		},
	}, nil)
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)

	rep, err := uc.ReconcileRefunds(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, usecase.ReconcileReport{Scanned: 2, Unmatched: 2, Pages: 1}, rep)
	assert.Empty(t, l.Refunds())
}

func TestReconcileRefunds_PageFailureStops(t *testing.T) {
	l := NewLedger()
	seedSucceeded(t, l)

	since := time.Now().Add(-time.Hour)
	gw := new(GatewayMock)
	gw.On("ListRefunds", mock.Anything, listReq(since, "")).Return(gateway.RefundPage{
		Refunds: []gateway.Refund{{ID: "re_1", IntentID: "pi_1", Amount: 100}},
		HasMore: true,
	}, nil).Once()
	gw.On("ListRefunds", mock.Anything, listReq(since, "re_1")).Return(gateway.RefundPage{}, gateway.ErrGatewayUnavailable).Once()
	uc := newPayment(l, gw, config.FlowPaymentFirst, false)

	rep, err := uc.ReconcileRefunds(context.Background(), since)
	assert.ErrorIs(t, err, gateway.ErrGatewayUnavailable)
	assert.Equal(t, usecase.ReconcileReport{Scanned: 1, Inserted: 1, Pages: 1}, rep)
	assert.Len(t, l.Refunds(), 1)
}
