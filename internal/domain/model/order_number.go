package model

import (
	"strings"

	"github.com/google/uuid"
)

// ORD- + UUID由来の英大文字16進10桁
func NewOrderNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:10])
}
