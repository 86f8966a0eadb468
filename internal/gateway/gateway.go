// Package gateway は決済ゲートウェイとのやり取りの約束を定義する。
// 実装（Stripe）は infra/gateway にある。
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// 通信・認証の失敗、サーキットブレーカー開放中
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// webhook署名の検証失敗
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ゲートウェイがリクエストを拒否した（金額不正など）
	ErrRejected = errors.New("payment gateway rejected request")
	// 署名は正しいが中身が読めない
	ErrMalformedEvent = errors.New("malformed webhook event")
)

type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	// 扱わない種類。RawTypeに元の名前が入る。
	EventUnknown EventType = "unknown"
)

// 検証済みのwebhookイベント（ゲートウェイ固有の形から変換したもの）
type Event struct {
	ID       string
	Type     EventType
	RawType  string
	IntentID string
	Amount   int64
	Currency string
	Metadata map[string]string
}

type IntentRequest struct {
	Amount   int64
	Currency string
	Metadata map[string]string
	// 同じキーの再送は同じintentを返す
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

type RefundRequest struct {
	IntentID string
	// nilなら残額すべて
	Amount *int64
	Reason string
}

type Refund struct {
	ID       string
	IntentID string
	Amount   int64
	Status   string
	Reason   string
	// ゲートウェイ側の作成時刻（分からなければゼロ値）
	Created time.Time
}

// 作成日時の新しい順の1ページ。次ページは最後のIDを StartingAfter に渡す。
type RefundPage struct {
	Refunds []Refund
	HasMore bool
}

type RefundListRequest struct {
	CreatedSince  time.Time
	StartingAfter string
	Limit         int64
}

// ローカルの状態は一切変更しない。
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	VerifyAndParseEvent(payload []byte, signatureHeader string, secret string) (Event, error)
	CreateRefund(ctx context.Context, req RefundRequest) (Refund, error)
	ListRefunds(ctx context.Context, req RefundListRequest) (RefundPage, error)
}
