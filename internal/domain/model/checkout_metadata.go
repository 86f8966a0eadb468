package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// v1: 商品名なし / v2: 商品名あり
const CheckoutMetadataVersion = 2

var ErrInvalidMetadata = errors.New("invalid checkout metadata")

// ゲートウェイに渡すメタデータのキー
const (
	GatewayMetaSessionID   = "session_id"
	GatewayMetaVersion     = "snapshot_version"
	GatewayMetaOrderNumber = "order_number"
)

type CheckoutLine struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

// チェックアウト開始時点のスナップショット
// webhookで注文を組み立てるときはこれだけを使う（カートは見ない）。
type CheckoutMetadata struct {
	Version   int             `json:"v"`
	SessionID string          `json:"session_id"`
	Customer  CustomerDetails `json:"customer"`
	Items     []CheckoutLine  `json:"items"`
}

func (m CheckoutMetadata) Total() int64 {
	var total int64
	for _, it := range m.Items {
		total += it.UnitPrice * it.Quantity
	}
	return total
}

// 注文明細に変換（OrderIDは呼び出し側で入れる）
func (m CheckoutMetadata) OrderItems() []OrderItem {
	items := make([]OrderItem, 0, len(m.Items))
	for _, it := range m.Items {
		items = append(items, OrderItem{
			ProductID:           it.ProductID,
			ProductNameSnapshot: it.ProductName,
			UnitPriceSnapshot:   it.UnitPrice,
			Quantity:            it.Quantity,
		})
	}
	return items
}

// ゲートウェイ側には小さい参照だけ載せる（値は500文字まで）
func (m CheckoutMetadata) GatewayMetadata() map[string]string {
	return map[string]string{
		GatewayMetaSessionID: m.SessionID,
		GatewayMetaVersion:   strconv.Itoa(m.Version),
	}
}

func (m CheckoutMetadata) Encode() ([]byte, error) {
	if m.Version == 0 {
		m.Version = CheckoutMetadataVersion
	}
	return json.Marshal(m)
}

// 現行以下の全バージョンを読める。古い版は現行の形に上げて返す。
func DecodeCheckoutMetadata(raw []byte) (CheckoutMetadata, error) {
	var m CheckoutMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return CheckoutMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	switch {
	case m.Version < 1 || m.Version > CheckoutMetadataVersion:
		return CheckoutMetadata{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidMetadata, m.Version)
	case m.Version == 1:
		// v1には商品名が無い。呼び出し側でカタログから補う。
		m.Version = CheckoutMetadataVersion
	}

	if m.SessionID == "" || len(m.Items) == 0 {
		return CheckoutMetadata{}, fmt.Errorf("%w: missing session or items", ErrInvalidMetadata)
	}
	for _, it := range m.Items {
		if it.ProductID <= 0 || it.Quantity < 1 || it.UnitPrice < 0 {
			return CheckoutMetadata{}, fmt.Errorf("%w: bad line for product %d", ErrInvalidMetadata, it.ProductID)
		}
	}
	return m, nil
}

// 商品名が欠けている明細があるか
func (m CheckoutMetadata) MissingNames() bool {
	for _, it := range m.Items {
		if it.ProductName == "" {
			return true
		}
	}
	return false
}
