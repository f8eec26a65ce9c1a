package model

// TaskDef — определение типа task, регистрируемое на сервере.
//
// Retry policy задаётся здесь: решение о повторном выполнении
// упавшего task принимает сервер, а не клиентский runtime.
type TaskDef struct {
	// Name — имя типа task.
	Name string `json:"name"`

	// Description — описание (опционально).
	Description string `json:"description,omitempty"`

	// RetryCount — сколько раз сервер повторяет упавший task.
	RetryCount int `json:"retryCount"`

	// TimeoutSeconds — общий таймаут task на сервере.
	TimeoutSeconds int64 `json:"timeoutSeconds,omitempty"`

	// ResponseTimeoutSeconds — lease: время до переотдачи task,
	// если worker не прислал результат или продление.
	ResponseTimeoutSeconds int64 `json:"responseTimeoutSeconds,omitempty"`

	// OwnerEmail — контакт владельца определения.
	OwnerEmail string `json:"ownerEmail,omitempty"`
}
