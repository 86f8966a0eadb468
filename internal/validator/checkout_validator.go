package validator

import (
	"errors"
	"regexp"
	"strings"

	"shop/internal/domain/model"
	"shop/internal/usecase"
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidSessionID = errors.New("invalid session id")
)

var (
	emailRe     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	phoneRe     = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)
)

type checkoutValidator struct{}

// Usecaseは interface を依存注入
func NewCheckoutValidator() usecase.CheckoutValidator {
	return &checkoutValidator{}
}

// セッションIDはクライアントが作る不透明な文字列
func (v *checkoutValidator) ValidateSessionID(sessionID string) error {
	if !sessionIDRe.MatchString(sessionID) {
		return ErrInvalidSessionID
	}
	return nil
}

// 購入者情報を検証
func (v *checkoutValidator) ValidateCustomer(c model.CustomerDetails) error {
	required := []struct {
		name  string
		value string
		max   int
	}{
		{"full_name", c.FullName, 255},
		{"email", c.Email, 255},
		{"phone", c.Phone, 30},
		{"address", c.Address, 255},
		{"city", c.City, 255},
		{"state", c.State, 100},
		{"country", c.Country, 100},
		{"pincode", c.Pincode, 20},
	}

	// 必須チェック
	for _, f := range required {
		s := strings.TrimSpace(f.value)
		if s == "" || len(s) > f.max {
			return fieldError(f.name)
		}
	}

	// email形式
	if !emailRe.MatchString(strings.TrimSpace(c.Email)) {
		return fieldError("email")
	}
	if !phoneRe.MatchString(strings.TrimSpace(c.Phone)) {
		return fieldError("phone")
	}

	return nil
}

// どの項目かをメッセージに出す（errors.Is(err, ErrInvalidInput) は true）
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return "invalid " + e.Field
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

func fieldError(name string) error {
	return &FieldError{Field: name}
}
