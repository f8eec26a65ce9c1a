package events

import (
	"time"

	"github.com/shaiso/Conveyor/model"
)

// Kind — тип события runtime.
type Kind string

// Типы событий.
const (
	KindPollStarted            Kind = "poll.started"
	KindPollCompleted          Kind = "poll.completed"
	KindPollFailure            Kind = "poll.failure"
	KindTaskExecutionStarted   Kind = "task.execution.started"
	KindTaskExecutionCompleted Kind = "task.execution.completed"
	KindTaskExecutionFailure   Kind = "task.execution.failure"
)

// Event — событие runtime. Все варианты — неизменяемые value-записи.
type Event interface {
	// EventKind возвращает тип события.
	EventKind() Kind
}

// PollStarted — начало poll-запроса.
type PollStarted struct {
	TaskType  string    `json:"taskType"`
	Domain    string    `json:"domain,omitempty"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// PollCompleted — успешное завершение poll-запроса.
type PollCompleted struct {
	TaskType  string        `json:"taskType"`
	TaskCount int           `json:"taskCount"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// PollFailure — ошибка poll-запроса.
type PollFailure struct {
	TaskType  string        `json:"taskType"`
	Reason    string        `json:"reason"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// TaskExecutionStarted — начало выполнения task.
type TaskExecutionStarted struct {
	TaskType           string    `json:"taskType"`
	TaskID             string    `json:"taskId"`
	WorkflowInstanceID string    `json:"workflowInstanceId"`
	WorkerID           string    `json:"workerId"`
	Timestamp          time.Time `json:"timestamp"`
}

// TaskExecutionCompleted — worker вернул результат без ошибки.
// Status — итоговый статус результата (COMPLETED или IN_PROGRESS).
type TaskExecutionCompleted struct {
	TaskType           string                 `json:"taskType"`
	TaskID             string                 `json:"taskId"`
	WorkflowInstanceID string                 `json:"workflowInstanceId"`
	Status             model.TaskResultStatus `json:"status"`
	Duration           time.Duration          `json:"duration"`
	Timestamp          time.Time              `json:"timestamp"`
}

// TaskExecutionFailure — выполнение task завершилось ошибкой worker'а.
type TaskExecutionFailure struct {
	TaskType           string        `json:"taskType"`
	TaskID             string        `json:"taskId"`
	WorkflowInstanceID string        `json:"workflowInstanceId"`
	Reason             string        `json:"reason"`
	Terminal           bool          `json:"terminal"`
	Duration           time.Duration `json:"duration"`
	Timestamp          time.Time     `json:"timestamp"`
}

// EventKind реализует Event.
func (PollStarted) EventKind() Kind            { return KindPollStarted }
func (PollCompleted) EventKind() Kind          { return KindPollCompleted }
func (PollFailure) EventKind() Kind            { return KindPollFailure }
func (TaskExecutionStarted) EventKind() Kind   { return KindTaskExecutionStarted }
func (TaskExecutionCompleted) EventKind() Kind { return KindTaskExecutionCompleted }
func (TaskExecutionFailure) EventKind() Kind   { return KindTaskExecutionFailure }
