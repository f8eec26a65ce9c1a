package model

// TaskResultStatus — статус результата выполнения task.
//
// Жизненный цикл:
//
//	(polled) → IN_PROGRESS → COMPLETED
//	                       ↘ FAILED (сервер решает про retry)
//	                       ↘ FAILED_WITH_TERMINAL_ERROR (без retry)
type TaskResultStatus string

const (
	// StatusCompleted — task успешно завершён.
	StatusCompleted TaskResultStatus = "COMPLETED"

	// StatusFailed — task завершился с ошибкой.
	// Решение о retry принимает сервер по retry policy типа task.
	StatusFailed TaskResultStatus = "FAILED"

	// StatusFailedWithTerminalError — task завершился с терминальной ошибкой.
	// Сервер не делает retry независимо от retry policy.
	StatusFailedWithTerminalError TaskResultStatus = "FAILED_WITH_TERMINAL_ERROR"

	// StatusInProgress — task ещё выполняется.
	// Сервер переотдаст task через CallbackAfterSeconds.
	StatusInProgress TaskResultStatus = "IN_PROGRESS"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskResultStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusFailedWithTerminalError:
		return true
	default:
		return false
	}
}
