package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// 業務エラー（errors.Isで判定できる）
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPaymentInitFailed = errors.New("payment initialization failed")
	ErrOrderAlreadyPaid  = errors.New("order already paid")
	ErrPaymentNotPending = errors.New("payment is not pending")
	ErrManualConfirmOff  = errors.New("manual confirmation disabled")
	ErrRefundNotAllowed  = errors.New("refund not allowed")
	ErrSnapshotMismatch  = errors.New("checkout snapshot does not match payment amount")
	ErrInvalidCustomer   = errors.New("invalid customer details")
	ErrNotFoundEntity    = errors.New("not found")
)

type HTTPError struct {
	Status  int
	Message string
	// 元になった業務エラー（無ければnil）
	Err error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

// 業務エラーを包んだHTTPError
func wrapHTTPError(status int, err error, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
		Err:     err,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// Not-Found(entity)
func notFound(entity string) error {
	return wrapHTTPError(http.StatusNotFound, ErrNotFoundEntity, entity+" not found")
}

func dbError(err error) error {
	return wrapHTTPError(http.StatusInternalServerError, err, "db error")
}
