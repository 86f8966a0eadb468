package usecase

import (
	"context"
	"errors"
	"net/http"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

// CartUsecase は /cart/:sessionId の業務ロジックです。
// 在庫チェックは参考（予約しない）。確定はチェックアウト時。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	// 在庫・価格の確認用（キャッシュなし）
	productRepo repo.ProductRepository
	// 表示用（Redisキャッシュ付きでもよい）
	catalog   repo.ProductRepository
	validator CheckoutValidator
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
	catalog repo.ProductRepository,
	validator CheckoutValidator,
) *CartUsecase {
	if catalog == nil {
		catalog = productRepo
	}
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
		catalog:      catalog,
		validator:    validator,
	}
}

// price_snapshot は追加時点の価格、unit_price は今の価格。
type CartItemResponse struct {
	ID            int64  `json:"id"`
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	PriceSnapshot int64  `json:"price_snapshot"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int64  `json:"quantity"`
	LineTotal     int64  `json:"line_total"`
}

// Total は今の価格で毎回計算し直す。
type CartResponse struct {
	SessionID string             `json:"session_id"`
	Items     []CartItemResponse `json:"items"`
	Total     int64              `json:"total"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

func emptyCart(sessionID string) CartResponse {
	return CartResponse{SessionID: sessionID, Items: []CartItemResponse{}, Total: 0}
}

// カート取得。無ければ空のカートを返す（エラーにしない）。
func (u *CartUsecase) Get(ctx context.Context, sessionID string) (CartResponse, error) {
	if err := u.validator.ValidateSessionID(sessionID); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}

	cart, err := u.cartRepo.FindBySessionID(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return emptyCart(sessionID), nil
	}
	if err != nil {
		return CartResponse{}, dbError(err)
	}

	return u.buildCartResponse(ctx, sessionID, cart.ID)
}

// カートに追加（同一商品は数量加算）。カートが無ければ作る。
func (u *CartUsecase) Add(ctx context.Context, sessionID string, in AddCartInput) (CartResponse, error) {
	if err := u.validator.ValidateSessionID(sessionID); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	// 商品チェック（公開のみ）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, notFound("product")
	}
	if err != nil {
		return CartResponse{}, dbError(err)
	}
	if !p.IsActive {
		return CartResponse{}, notFound("product")
	}

	cart, err := u.cartRepo.GetOrCreateBySessionID(ctx, sessionID)
	if err != nil {
		return CartResponse{}, dbError(err)
	}

	// 既存数量と合わせて在庫を見る
	var existingQty int64
	item, err := u.cartItemRepo.FindByCartAndProduct(ctx, cart.ID, in.ProductID)
	switch {
	case err == nil:
		existingQty = item.Quantity
	case errors.Is(err, repo.ErrNotFound):
	default:
		return CartResponse{}, dbError(err)
	}

	if !p.HasStock(existingQty + in.Quantity) {
		return CartResponse{}, wrapHTTPError(http.StatusBadRequest, ErrInsufficientStock, "insufficient stock")
	}

	// unit_price_snapshot は「追加時点の価格」を渡す
	if err := u.cartItemRepo.UpsertByCartAndProduct(ctx, cart.ID, in.ProductID, in.Quantity, p.Price); err != nil {
		return CartResponse{}, dbError(err)
	}

	return u.buildCartResponse(ctx, sessionID, cart.ID)
}

// 数量変更（在庫チェックあり）。
func (u *CartUsecase) SetQuantity(ctx context.Context, sessionID string, productID int64, qty int64) (CartResponse, error) {
	if err := u.validator.ValidateSessionID(sessionID); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if qty < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	cart, item, err := u.findLine(ctx, sessionID, productID)
	if err != nil {
		return CartResponse{}, err
	}

	//商品の在庫チェック
	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, notFound("product")
	}
	if err != nil {
		return CartResponse{}, dbError(err)
	}
	if !p.HasStock(qty) {
		return CartResponse{}, wrapHTTPError(http.StatusBadRequest, ErrInsufficientStock, "insufficient stock")
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, item.ID, qty); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, notFound("cart item")
		}
		return CartResponse{}, dbError(err)
	}

	return u.buildCartResponse(ctx, sessionID, cart.ID)
}

// 明細削除
func (u *CartUsecase) Remove(ctx context.Context, sessionID string, productID int64) (CartResponse, error) {
	if err := u.validator.ValidateSessionID(sessionID); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}
	if productID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}

	cart, item, err := u.findLine(ctx, sessionID, productID)
	if err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.DeleteByID(ctx, item.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, notFound("cart item")
		}
		return CartResponse{}, dbError(err)
	}

	return u.buildCartResponse(ctx, sessionID, cart.ID)
}

// カートごと削除。無くてもエラーにしない。
func (u *CartUsecase) Clear(ctx context.Context, sessionID string) (CartResponse, error) {
	if err := u.validator.ValidateSessionID(sessionID); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}
	if _, err := u.cartRepo.DeleteBySessionID(ctx, sessionID); err != nil {
		return CartResponse{}, dbError(err)
	}
	return emptyCart(sessionID), nil
}

// セッションのカートと、その商品の明細
func (u *CartUsecase) findLine(ctx context.Context, sessionID string, productID int64) (model.Cart, model.CartItem, error) {
	cart, err := u.cartRepo.FindBySessionID(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, model.CartItem{}, notFound("cart")
	}
	if err != nil {
		return model.Cart{}, model.CartItem{}, dbError(err)
	}

	item, err := u.cartItemRepo.FindByCartAndProduct(ctx, cart.ID, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, model.CartItem{}, notFound("cart item")
	}
	if err != nil {
		return model.Cart{}, model.CartItem{}, dbError(err)
	}
	return cart, item, nil
}

// cartIDの明細をまとめてCartResponseを作る。合計は今の価格。
func (u *CartUsecase) buildCartResponse(ctx context.Context, sessionID string, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, dbError(err)
	}

	resp := emptyCart(sessionID)
	resp.Items = make([]CartItemResponse, 0, len(items))

	for _, it := range items {
		p, err := u.catalog.FindByID(ctx, it.ProductID)
		if err != nil {
			continue
		}
		if !p.IsActive {
			continue
		}

		line := p.Price * it.Quantity
		resp.Items = append(resp.Items, CartItemResponse{
			ID:            it.ID,
			ProductID:     it.ProductID,
			Name:          p.Name,
			PriceSnapshot: it.UnitPriceSnapshot,
			UnitPrice:     p.Price,
			Quantity:      it.Quantity,
			LineTotal:     line,
		})
		resp.Total += line
	}

	return resp, nil
}
