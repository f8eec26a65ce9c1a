package client

import (
	"errors"
	"fmt"
)

// Ошибки клиента.
var (
	// ErrAuthRetriesExhausted — политика auth-retry исчерпала попытки.
	// Получив эту ошибку, runtime должен остановиться.
	ErrAuthRetriesExhausted = errors.New("auth retry attempts exhausted")

	// ErrTokenRequest — не удалось получить access token.
	ErrTokenRequest = errors.New("token request failed")
)

// APIError — ответ сервера с кодом >= 400.
type APIError struct {
	// StatusCode — HTTP-код ответа.
	StatusCode int

	// Endpoint — путь запроса.
	Endpoint string

	// Body — тело ответа (обрезанное).
	Body string
}

// Error реализует error.
func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d for %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// IsStatus проверяет, является ли ошибка APIError с данным кодом.
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == statusCode
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
