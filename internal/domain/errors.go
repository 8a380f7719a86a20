package domain

import "errors"

// Категории ошибок ядра. Хендлеры сопоставляют их с HTTP-кодами,
// сервисы оборачивают через fmt.Errorf с %w.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotAuthorized = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state")
	ErrExpired       = errors.New("expired")
	ErrRevoked       = errors.New("revoked")
)
