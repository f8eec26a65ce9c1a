package worker

import "errors"

// Ошибки runtime.
var (
	// ErrNoWorker — для типа task не зарегистрирован worker.
	ErrNoWorker = errors.New("no worker registered for task type")

	// ErrDuplicateTaskType — тип task уже зарегистрирован.
	ErrDuplicateTaskType = errors.New("task type already registered")

	// ErrDuplicateTask — task уже выполняется (повторный dispatch
	// до отправки результата запрещён).
	ErrDuplicateTask = errors.New("task is already in flight")

	// ErrInvalidDefinition — некорректное определение worker'а.
	ErrInvalidDefinition = errors.New("invalid worker definition")

	// ErrRuntimeStopped — runtime остановлен.
	ErrRuntimeStopped = errors.New("runtime stopped")
)
