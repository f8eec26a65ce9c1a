package model

import "time"

// TaskResult — результат выполнения task, отправляемый на сервер.
//
// Создаётся заново на каждое выполнение, заполняется executor'ом
// и отправляется через client.UpdateTask. После отправки не переиспользуется.
type TaskResult struct {
	// TaskID — идентификатор task (копия Task.TaskID).
	TaskID string `json:"taskId"`

	// WorkflowInstanceID — идентификатор workflow (копия из Task).
	WorkflowInstanceID string `json:"workflowInstanceId"`

	// WorkerID — идентификатор worker'а, выполнившего task.
	WorkerID string `json:"workerId,omitempty"`

	// Status — статус выполнения.
	Status TaskResultStatus `json:"status"`

	// OutputData — выходные данные выполнения.
	OutputData map[string]any `json:"outputData,omitempty"`

	// ReasonForIncompletion — текст ошибки при FAILED / FAILED_WITH_TERMINAL_ERROR.
	ReasonForIncompletion string `json:"reasonForIncompletion,omitempty"`

	// Logs — записи лога выполнения (например stack trace при ошибке).
	Logs []TaskExecLog `json:"logs,omitempty"`

	// CallbackAfterSeconds — через сколько секунд сервер должен
	// переотдать task (используется с IN_PROGRESS).
	CallbackAfterSeconds int64 `json:"callbackAfterSeconds,omitempty"`

	// ExtendLease — просьба продлить lease без переотдачи task:
	// worker жив, выполнение продолжается.
	ExtendLease bool `json:"extendLease,omitempty"`
}

// TaskExecLog — одна запись лога выполнения task.
type TaskExecLog struct {
	// Log — текст записи.
	Log string `json:"log"`

	// TaskID — идентификатор task.
	TaskID string `json:"taskId,omitempty"`

	// CreatedTime — время создания записи (unix millis).
	CreatedTime int64 `json:"createdTime,omitempty"`
}

// NewTaskResult создаёт результат-заготовку для task.
// Идентификаторы копируются из task, статус изначально IN_PROGRESS.
func NewTaskResult(task *Task, workerID string) *TaskResult {
	return &TaskResult{
		TaskID:             task.TaskID,
		WorkflowInstanceID: task.WorkflowInstanceID,
		WorkerID:           workerID,
		Status:             StatusInProgress,
	}
}

// MarkCompleted переводит результат в COMPLETED с выходными данными.
func (r *TaskResult) MarkCompleted(outputs map[string]any) {
	r.Status = StatusCompleted
	r.OutputData = outputs
}

// MarkFailed переводит результат в FAILED с текстом ошибки.
func (r *TaskResult) MarkFailed(reason string) {
	r.Status = StatusFailed
	r.ReasonForIncompletion = reason
}

// MarkTerminallyFailed переводит результат в FAILED_WITH_TERMINAL_ERROR.
// Сервер не будет делать retry для этого task.
func (r *TaskResult) MarkTerminallyFailed(reason string) {
	r.Status = StatusFailedWithTerminalError
	r.ReasonForIncompletion = reason
}

// MarkInProgress переводит результат в IN_PROGRESS.
// callbackAfter — через сколько секунд сервер переотдаст task.
func (r *TaskResult) MarkInProgress(callbackAfter int64) {
	r.Status = StatusInProgress
	r.CallbackAfterSeconds = callbackAfter
}

// AddLog добавляет запись лога к результату.
func (r *TaskResult) AddLog(text string) {
	r.Logs = append(r.Logs, TaskExecLog{
		Log:         text,
		TaskID:      r.TaskID,
		CreatedTime: time.Now().UnixMilli(),
	})
}
