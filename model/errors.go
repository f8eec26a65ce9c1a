package model

import "errors"

// NonRetryableError — ошибка, объявленная worker'ом терминальной.
//
// Worker возвращает её (напрямую или через NonRetryable), чтобы
// сообщить серверу: retry бессмысленен. Runtime переводит такую
// ошибку в статус FAILED_WITH_TERMINAL_ERROR.
type NonRetryableError struct {
	Err error
}

// NonRetryable оборачивает ошибку как терминальную.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// Error возвращает текст исходной ошибки.
func (e *NonRetryableError) Error() string {
	return e.Err.Error()
}

// Unwrap возвращает исходную ошибку.
func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// IsNonRetryable проверяет, объявлена ли ошибка терминальной.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// InProgress — маркер "ещё не готово", возвращаемый worker'ом.
//
// Worker, который не может завершить task за один вызов, возвращает
// InProgress: сервер переотдаст task через CallbackAfterSeconds,
// сохранив уже записанные OutputData.
type InProgress struct {
	// CallbackAfterSeconds — через сколько секунд сервер переотдаст task.
	CallbackAfterSeconds int64

	// OutputData — промежуточные выходные данные (опционально).
	OutputData map[string]any
}
