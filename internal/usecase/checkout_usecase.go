package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shop/internal/config"
	"shop/internal/domain/model"
	"shop/internal/gateway"
	repo "shop/internal/repository"

	"go.uber.org/zap"
)

// チェックアウト入力のチェック（validatorパッケージが実装）
type CheckoutValidator interface {
	ValidateSessionID(sessionID string) error
	ValidateCustomer(c model.CustomerDetails) error
}

type CheckoutConfig struct {
	Currency       string
	Flow           config.CheckoutFlow
	GatewayTimeout time.Duration
}

// CheckoutUsecase はカートから決済intentを作る。
// payment_first では注文は作らない（webhookで作る）。
type CheckoutUsecase struct {
	tx        repo.TransactionManager
	carts     repo.CartRepository
	cartItems repo.CartItemRepository
	products  repo.ProductRepository
	payments  repo.PaymentIntentRepository
	gateway   gateway.PaymentGateway
	validator CheckoutValidator
	cfg       CheckoutConfig
	logger    *zap.Logger

	newOrderNumber func() string
}

// DI
func NewCheckoutUsecase(
	tx repo.TransactionManager,
	carts repo.CartRepository,
	cartItems repo.CartItemRepository,
	products repo.ProductRepository,
	payments repo.PaymentIntentRepository,
	gw gateway.PaymentGateway,
	validator CheckoutValidator,
	cfg CheckoutConfig,
	logger *zap.Logger,
) *CheckoutUsecase {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.Flow == "" {
		cfg.Flow = config.FlowPaymentFirst
	}
	return &CheckoutUsecase{
		tx:             tx,
		carts:          carts,
		cartItems:      cartItems,
		products:       products,
		payments:       payments,
		gateway:        gw,
		validator:      validator,
		cfg:            cfg,
		logger:         logger,
		newOrderNumber: model.NewOrderNumber,
	}
}

type InitiateCheckoutInput struct {
	SessionID string
	Customer  model.CustomerDetails
	// 任意。同じキーの再送は同じintentを返す。
	IdempotencyKey string
}

type InitiateCheckoutOutput struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	TotalAmount     int64  `json:"total_amount"`
	Currency        string `json:"currency"`
	OrderNumber     string `json:"order_number,omitempty"`
}

func (u *CheckoutUsecase) InitiateCheckout(ctx context.Context, in InitiateCheckoutInput) (InitiateCheckoutOutput, error) {
	if err := u.validator.ValidateSessionID(in.SessionID); err != nil {
		return InitiateCheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}
	if err := u.validator.ValidateCustomer(in.Customer); err != nil {
		return InitiateCheckoutOutput{}, wrapHTTPError(http.StatusBadRequest, ErrInvalidCustomer, err.Error())
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 200 {
		return InitiateCheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}

	meta, err := u.snapshot(ctx, in)
	if err != nil {
		return InitiateCheckoutOutput{}, err
	}

	if u.cfg.Flow == config.FlowOrderFirst {
		return u.initiateOrderFirst(ctx, meta, key)
	}
	return u.initiatePaymentFirst(ctx, meta, key)
}

// カートと今の価格・在庫からスナップショットを作る
func (u *CheckoutUsecase) snapshot(ctx context.Context, in InitiateCheckoutInput) (model.CheckoutMetadata, error) {
	cart, err := u.carts.FindBySessionID(ctx, in.SessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.CheckoutMetadata{}, wrapHTTPError(http.StatusBadRequest, ErrEmptyCart, "cart is empty")
	}
	if err != nil {
		return model.CheckoutMetadata{}, dbError(err)
	}

	items, err := u.cartItems.ListByCartID(ctx, cart.ID)
	if err != nil {
		return model.CheckoutMetadata{}, dbError(err)
	}
	if len(items) == 0 {
		return model.CheckoutMetadata{}, wrapHTTPError(http.StatusBadRequest, ErrEmptyCart, "cart is empty")
	}

	lines := make([]model.CheckoutLine, 0, len(items))
	for _, it := range items {
		p, err := u.products.FindByID(ctx, it.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return model.CheckoutMetadata{}, notFound("product")
		}
		if err != nil {
			return model.CheckoutMetadata{}, dbError(err)
		}
		if !p.IsActive || !p.HasStock(it.Quantity) {
			return model.CheckoutMetadata{}, wrapHTTPError(http.StatusBadRequest, ErrOutOfStock, fmt.Sprintf("out of stock: %s", p.Name))
		}

		// 価格はカート追加時ではなく今の価格
		lines = append(lines, model.CheckoutLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
		})
	}

	return model.CheckoutMetadata{
		Version:   model.CheckoutMetadataVersion,
		SessionID: in.SessionID,
		Customer:  in.Customer,
		Items:     lines,
	}, nil
}

func (u *CheckoutUsecase) initiatePaymentFirst(ctx context.Context, meta model.CheckoutMetadata, key string) (InitiateCheckoutOutput, error) {
	raw, err := meta.Encode()
	if err != nil {
		return InitiateCheckoutOutput{}, wrapHTTPError(http.StatusInternalServerError, err, "internal error")
	}

	intent, err := u.createIntent(ctx, meta, nil, key)
	if err != nil {
		return InitiateCheckoutOutput{}, err
	}

	// 返す前に必ず保存（webhookはこれを見て注文を作る）
	err = u.payments.Create(ctx, model.PaymentIntent{
		IntentID:  intent.ID,
		Amount:    meta.Total(),
		Currency:  u.cfg.Currency,
		Status:    model.PaymentStatusPending,
		SessionID: meta.SessionID,
		Metadata:  raw,
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// 同じ冪等キーの再送
		return u.replayed(ctx, intent, meta.SessionID)
	}
	if err != nil {
		return InitiateCheckoutOutput{}, dbError(err)
	}

	return InitiateCheckoutOutput{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		TotalAmount:     meta.Total(),
		Currency:        u.cfg.Currency,
	}, nil
}

// 先にPENDING注文を作ってからintentを作る
func (u *CheckoutUsecase) initiateOrderFirst(ctx context.Context, meta model.CheckoutMetadata, key string) (InitiateCheckoutOutput, error) {
	raw, err := meta.Encode()
	if err != nil {
		return InitiateCheckoutOutput{}, wrapHTTPError(http.StatusInternalServerError, err, "internal error")
	}

	orderNumber := u.newOrderNumber()
	var orderID int64

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		id, err := r.Orders().Create(ctx, model.Order{
			OrderNumber: orderNumber,
			Status:      model.OrderStatusPending,
			TotalAmount: meta.Total(),
			Currency:    u.cfg.Currency,
			Customer:    meta.Customer,
		})
		if err != nil {
			return dbError(err)
		}
		if err := r.OrderItems().CreateBulk(ctx, id, meta.OrderItems()); err != nil {
			return dbError(err)
		}
		orderID = id
		return nil
	})
	if err != nil {
		return InitiateCheckoutOutput{}, err
	}

	intent, err := u.createIntent(ctx, meta, map[string]string{model.GatewayMetaOrderNumber: orderNumber}, key)
	if err != nil {
		// 注文は残るが FAILED にしておく
		if markErr := u.markOrderFailed(ctx, orderID); markErr != nil {
			u.logger.Error("failed to mark order failed after gateway error",
				zap.String("order_number", orderNumber),
				zap.Error(markErr),
			)
		}
		return InitiateCheckoutOutput{}, err
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.PaymentIntents().Create(ctx, model.PaymentIntent{
			IntentID:  intent.ID,
			Amount:    meta.Total(),
			Currency:  u.cfg.Currency,
			Status:    model.PaymentStatusPending,
			SessionID: meta.SessionID,
			Metadata:  raw,
			OrderID:   &orderID,
		}); err != nil {
			return err
		}
		return r.Orders().AttachPaymentIntent(ctx, orderID, intent.ID)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// 再送。今回作った注文は使わない
		if markErr := u.markOrderFailed(ctx, orderID); markErr != nil {
			u.logger.Error("failed to mark replayed order failed",
				zap.String("order_number", orderNumber),
				zap.String("intent_id", intent.ID),
				zap.Error(markErr),
			)
		}
		return u.replayed(ctx, intent, meta.SessionID)
	}
	if err != nil {
		return InitiateCheckoutOutput{}, dbError(err)
	}

	return InitiateCheckoutOutput{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		TotalAmount:     meta.Total(),
		Currency:        u.cfg.Currency,
		OrderNumber:     orderNumber,
	}, nil
}

func (u *CheckoutUsecase) createIntent(ctx context.Context, meta model.CheckoutMetadata, extra map[string]string, key string) (gateway.Intent, error) {
	gctx, cancel := context.WithTimeout(ctx, u.cfg.GatewayTimeout)
	defer cancel()

	md := meta.GatewayMetadata()
	for k, v := range extra {
		md[k] = v
	}
	if key != "" {
		key = "checkout:" + meta.SessionID + ":" + key
	}

	intent, err := u.gateway.CreateIntent(gctx, gateway.IntentRequest{
		Amount:         meta.Total(),
		Currency:       u.cfg.Currency,
		Metadata:       md,
		IdempotencyKey: key,
	})
	if err != nil {
		u.logger.Error("create payment intent failed",
			zap.String("session_id", meta.SessionID),
			zap.Int64("amount", meta.Total()),
			zap.Error(err),
		)
		return gateway.Intent{}, wrapHTTPError(http.StatusBadGateway, ErrPaymentInitFailed, "payment initialization failed")
	}
	return intent, nil
}

// 冪等キーの再送。既存がPENDINGかつ同じセッションなら同じ結果を返す。
func (u *CheckoutUsecase) replayed(ctx context.Context, intent gateway.Intent, sessionID string) (InitiateCheckoutOutput, error) {
	existing, err := u.payments.FindByIntentID(ctx, intent.ID)
	if err != nil {
		return InitiateCheckoutOutput{}, dbError(err)
	}
	if existing.SessionID != sessionID || existing.Status != model.PaymentStatusPending {
		return InitiateCheckoutOutput{}, NewHTTPError(http.StatusConflict, "idempotency conflict")
	}

	out := InitiateCheckoutOutput{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: existing.IntentID,
		TotalAmount:     existing.Amount,
		Currency:        existing.Currency,
	}
	if existing.OrderID != nil {
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindByID(ctx, *existing.OrderID)
			if err != nil {
				return err
			}
			out.OrderNumber = o.OrderNumber
			return nil
		})
		if err != nil {
			return InitiateCheckoutOutput{}, dbError(err)
		}
	}
	return out, nil
}

func (u *CheckoutUsecase) markOrderFailed(ctx context.Context, orderID int64) error {
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.Orders().UpdateStatus(ctx, orderID, model.OrderStatusFailed)
	})
}
