package model

// Task — единица работы, полученная от оркестрационного сервера.
//
// Task принадлежит runtime только на время одного выполнения:
// worker читает InputData, но не мутирует task. Повторная выдача
// того же task (после таймаута lease) приходит как новый poll.
type Task struct {
	// TaskID — уникальный идентификатор task (назначается сервером).
	TaskID string `json:"taskId"`

	// WorkflowInstanceID — идентификатор workflow, к которому относится task.
	WorkflowInstanceID string `json:"workflowInstanceId"`

	// TaskDefName — имя типа task (по нему выбирается worker).
	TaskDefName string `json:"taskDefName"`

	// ReferenceTaskName — имя task внутри workflow-определения.
	ReferenceTaskName string `json:"referenceTaskName,omitempty"`

	// InputData — именованные входные значения.
	InputData map[string]any `json:"inputData,omitempty"`

	// RetryCount — номер попытки на стороне сервера (начиная с 0).
	RetryCount int `json:"retryCount"`

	// PollCount — сколько раз task был выдан worker'ам.
	PollCount int `json:"pollCount"`

	// ResponseTimeoutSeconds — lease: за сколько секунд сервер ожидает
	// результат, прежде чем переотдать task другому worker'у.
	ResponseTimeoutSeconds int64 `json:"responseTimeoutSeconds,omitempty"`

	// Domain — логический раздел очереди, из которого task был получен.
	Domain string `json:"domain,omitempty"`
}

// Input возвращает входное значение по имени.
// Второе возвращаемое значение — false, если ключ отсутствует.
func (t *Task) Input(name string) (any, bool) {
	if t.InputData == nil {
		return nil, false
	}
	v, ok := t.InputData[name]
	return v, ok
}
