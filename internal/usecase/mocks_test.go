package usecase_test

import (
	"context"
	"strings"
	"testing"

	"shop/internal/domain/model"
	"shop/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// PaymentGateway mock
// =====================

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	args := m.Called(ctx, req)
	in, _ := args.Get(0).(gateway.Intent)
	return in, args.Error(1)
}

func (m *GatewayMock) VerifyAndParseEvent(payload []byte, signatureHeader string, secret string) (gateway.Event, error) {
	panic("not used in usecase tests")
}

func (m *GatewayMock) CreateRefund(ctx context.Context, req gateway.RefundRequest) (gateway.Refund, error) {
	args := m.Called(ctx, req)
	rf, _ := args.Get(0).(gateway.Refund)
	return rf, args.Error(1)
}

func (m *GatewayMock) ListRefunds(ctx context.Context, req gateway.RefundListRequest) (gateway.RefundPage, error) {
	args := m.Called(ctx, req)
	page, _ := args.Get(0).(gateway.RefundPage)
	return page, args.Error(1)
}

// =====================
// Helpers
// =====================

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

func testCustomer() model.CustomerDetails {
	return model.CustomerDetails{
		FullName: "Asha Rao",
		Email:    "asha@example.com",
		Phone:    "+91 98765 43210",
		Address:  "12 MG Road",
		City:     "Bengaluru",
		State:    "KA",
		Country:  "IN",
		Pincode:  "560001",
	}
}

func encodeMeta(t *testing.T, sessionID string, lines ...model.CheckoutLine) []byte {
	t.Helper()
	raw, err := model.CheckoutMetadata{
		Version:   model.CheckoutMetadataVersion,
		SessionID: sessionID,
		Customer:  testCustomer(),
		Items:     lines,
	}.Encode()
	require.NoError(t, err)
	return raw
}

// PENDING のintent（payment_first）
func seedPendingIntent(t *testing.T, l *Ledger, intentID string, sessionID string, lines ...model.CheckoutLine) model.PaymentIntent {
	t.Helper()
	meta := model.CheckoutMetadata{Items: lines}
	pi := model.PaymentIntent{
		IntentID:  intentID,
		Amount:    meta.Total(),
		Currency:  "usd",
		Status:    model.PaymentStatusPending,
		SessionID: sessionID,
		Metadata:  encodeMeta(t, sessionID, lines...),
	}
	l.AddIntent(pi)
	return l.Intent(intentID)
}

func succeeded(eventID, intentID string) gateway.Event {
	return gateway.Event{ID: eventID, Type: gateway.EventPaymentSucceeded, RawType: "payment_intent.succeeded", IntentID: intentID}
}

func failed(eventID, intentID string) gateway.Event {
	return gateway.Event{ID: eventID, Type: gateway.EventPaymentFailed, RawType: "payment_intent.payment_failed", IntentID: intentID}
}
