package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 一意制約違反（同じイベントID、同じ返金IDなど）
	ErrDuplicate = errors.New("duplicate")
)
