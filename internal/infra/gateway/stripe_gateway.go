package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gw "shop/internal/gateway"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration

	// 空なら本番のAPI。テストではhttptestのURLを入れる。
	BackendURL        string
	MaxNetworkRetries int64

	// 連続失敗がこの回数でブレーカーを開く
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// StripeGateway は stripe-go のクライアントをDIで持つ（stripe.Key は使わない）。
type StripeGateway struct {
	sc      *client.API
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) *StripeGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     logger.Sugar(),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}

	sc := client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// 4xx（カード拒否など）は障害として数えない
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(classify(err), gw.ErrRejected)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &StripeGateway{
		sc:      sc,
		timeout: cfg.Timeout,
		breaker: breaker,
		logger:  logger,
	}
}

func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req gw.IntentRequest) (gw.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := execute(g.breaker, func() (*stripe.PaymentIntent, error) {
		return g.sc.PaymentIntents.New(params)
	})
	if err != nil {
		return gw.Intent{}, fmt.Errorf("stripe create intent: %w", classify(err))
	}

	return gw.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// 署名検証とイベントの変換。ネットワークは使わない。
func (g *StripeGateway) VerifyAndParseEvent(payload []byte, signatureHeader string, secret string) (gw.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return gw.Event{}, fmt.Errorf("%w: %v", gw.ErrInvalidSignature, err)
	}

	out := gw.Event{
		ID:      event.ID,
		Type:    gw.EventUnknown,
		RawType: string(event.Type),
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		out.Type = gw.EventPaymentSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		out.Type = gw.EventPaymentFailed
	default:
		return out, nil
	}

	if event.Data == nil {
		return gw.Event{}, fmt.Errorf("%w: event %s has no data", gw.ErrMalformedEvent, event.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return gw.Event{}, fmt.Errorf("%w: %v", gw.ErrMalformedEvent, err)
	}
	if pi.ID == "" {
		return gw.Event{}, fmt.Errorf("%w: event %s has no payment intent id", gw.ErrMalformedEvent, event.ID)
	}

	out.IntentID = pi.ID
	out.Amount = pi.Amount
	out.Currency = string(pi.Currency)
	out.Metadata = pi.Metadata
	return out, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req gw.RefundRequest) (gw.Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	params.Context = ctx

	r, err := execute(g.breaker, func() (*stripe.Refund, error) {
		return g.sc.Refunds.New(params)
	})
	if err != nil {
		return gw.Refund{}, fmt.Errorf("stripe create refund: %w", classify(err))
	}
	return toRefund(r, req.IntentID), nil
}

// 1ページだけ取る（Single）。ページ送りは呼び出し側がIDカーソルで行う。
func (g *StripeGateway) ListRefunds(ctx context.Context, req gw.RefundListRequest) (gw.RefundPage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	params := &stripe.RefundListParams{}
	if !req.CreatedSince.IsZero() {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: req.CreatedSince.Unix()}
	}
	params.Limit = stripe.Int64(limit)
	if req.StartingAfter != "" {
		params.StartingAfter = stripe.String(req.StartingAfter)
	}
	params.Single = true
	params.Context = ctx

	page, err := execute(g.breaker, func() (gw.RefundPage, error) {
		out := gw.RefundPage{Refunds: []gw.Refund{}}
		it := g.sc.Refunds.List(params)
		for it.Next() {
			out.Refunds = append(out.Refunds, toRefund(it.Refund(), ""))
		}
		if err := it.Err(); err != nil {
			return gw.RefundPage{}, err
		}
		if meta := it.Meta(); meta != nil {
			out.HasMore = meta.HasMore
		}
		return out, nil
	})
	if err != nil {
		return gw.RefundPage{}, fmt.Errorf("stripe list refunds: %w", classify(err))
	}
	return page, nil
}

// intentIDが空なら返金オブジェクト側のpayment_intentを使う
func toRefund(r *stripe.Refund, intentID string) gw.Refund {
	if intentID == "" && r.PaymentIntent != nil {
		intentID = r.PaymentIntent.ID
	}
	out := gw.Refund{
		ID:       r.ID,
		IntentID: intentID,
		Amount:   r.Amount,
		Status:   string(r.Status),
		Reason:   string(r.Reason),
	}
	if r.Created > 0 {
		out.Created = time.Unix(r.Created, 0).UTC()
	}
	return out
}

// 4xx（認証・レート制限を除く）は拒否、それ以外は利用不可として扱う
func classify(err error) error {
	if errors.Is(err, gw.ErrRejected) || errors.Is(err, gw.ErrGatewayUnavailable) {
		return err
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusUnauthorized,
			se.HTTPStatusCode == http.StatusForbidden,
			se.HTTPStatusCode == http.StatusTooManyRequests,
			se.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %w", gw.ErrGatewayUnavailable, err)
		case se.HTTPStatusCode >= 400:
			return fmt.Errorf("%w: %w", gw.ErrRejected, err)
		}
	}

	// 通信エラー、タイムアウト、ブレーカー開放
	return fmt.Errorf("%w: %w", gw.ErrGatewayUnavailable, err)
}
