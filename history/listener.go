package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/events"
	"github.com/shaiso/Conveyor/model"
)

// writeTimeout — бюджет одной записи в журнал.
const writeTimeout = 5 * time.Second

// Listener пишет завершённые выполнения task в журнал.
//
// Подписывается асинхронно: запись в БД не задерживает ни цикл
// runner'а, ни пул выполнений. Ошибки записи логируются и не
// влияют на выполнение task.
type Listener struct {
	store  *Store
	logger *slog.Logger
}

// NewListener создаёт Listener поверх хранилища журнала.
func NewListener(store *Store, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{store: store, logger: logger}
}

// Bind подписывает Listener на события завершения выполнений.
func (l *Listener) Bind(d *events.Dispatcher) {
	d.RegisterAsync(events.KindTaskExecutionCompleted, l)
	d.RegisterAsync(events.KindTaskExecutionFailure, l)
}

// OnEvent реализует events.Listener.
func (l *Listener) OnEvent(e events.Event) {
	var rec Record

	switch ev := e.(type) {
	case events.TaskExecutionCompleted:
		rec = Record{
			TaskID:     ev.TaskID,
			WorkflowID: ev.WorkflowInstanceID,
			TaskType:   ev.TaskType,
			Status:     string(ev.Status),
			Duration:   ev.Duration,
			OccurredAt: ev.Timestamp,
		}

	case events.TaskExecutionFailure:
		status := model.StatusFailed
		if ev.Terminal {
			status = model.StatusFailedWithTerminalError
		}
		rec = Record{
			TaskID:     ev.TaskID,
			WorkflowID: ev.WorkflowInstanceID,
			TaskType:   ev.TaskType,
			Status:     string(status),
			Reason:     ev.Reason,
			Duration:   ev.Duration,
			OccurredAt: ev.Timestamp,
		}

	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.store.Insert(ctx, &rec); err != nil {
		l.logger.Error("failed to record task execution",
			"task_id", rec.TaskID,
			"status", rec.Status,
			"error", err,
		)
	}
}
