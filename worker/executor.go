package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Conveyor/events"
	"github.com/shaiso/Conveyor/model"
)

// defaultLeaseInterval — период продления lease, если сервер
// не сообщил ResponseTimeoutSeconds.
const defaultLeaseInterval = 30 * time.Second

// Pending — отложенное выполнение: task отправлен в пул,
// результат будет собран на одном из следующих циклов runner'а.
//
// Запись живёт в таблице от dispatch до сбора результата
// и удаляется в CollectCompleted.
type Pending struct {
	// Task — исходный task.
	Task model.Task

	// Result — результат выполнения (валиден после закрытия done).
	Result *model.TaskResult

	// SubmittedAt — время dispatch.
	SubmittedAt time.Time

	// lastExtend — время последнего продления lease (под mu executor'а).
	lastExtend time.Time

	// done закрывается по завершении выполнения.
	done chan struct{}
}

// ExecutorConfig — конфигурация Executor.
type ExecutorConfig struct {
	// WorkerID — идентификатор worker'а (попадает в TaskResult).
	WorkerID string

	// ThreadCount — максимум одновременных выполнений (default: 1).
	ThreadCount int

	// Dispatcher — шина событий (опционально).
	Dispatcher *events.Dispatcher

	// Logger.
	Logger *slog.Logger
}

// Executor выполняет worker'ы в ограниченном пуле горутин.
//
// Каждый dispatch — отложенное выполнение: вызов возвращается сразу,
// тело worker'а выполняется в пуле, а результат собирается позже
// через CollectCompleted. Poll-цикл никогда не блокируется на
// медленном worker'е.
//
// Таблица pending — единственное состояние, разделяемое между
// горутинами пула и циклом runner'а; защищена мьютексом.
type Executor struct {
	workerID   string
	dispatcher *events.Dispatcher
	logger     *slog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// completions — wake-up сигнал для runner'а (best-effort).
	completions chan struct{}

	mu      sync.Mutex
	pending map[string]*Pending
}

// NewExecutor создаёт Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	threads := cfg.ThreadCount
	if threads <= 0 {
		threads = defaultThreadCount
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewDispatcher(logger)
	}

	return &Executor{
		workerID:    cfg.WorkerID,
		dispatcher:  dispatcher,
		logger:      logger,
		sem:         semaphore.NewWeighted(int64(threads)),
		completions: make(chan struct{}, 1),
		pending:     make(map[string]*Pending),
	}
}

// Dispatch отправляет task на выполнение и возвращается сразу.
//
// Инвариант: не больше одного выполнения на task — повторный
// dispatch того же TaskID до сбора результата возвращает
// ErrDuplicateTask.
func (e *Executor) Dispatch(ctx context.Context, task model.Task, w Worker) error {
	e.mu.Lock()
	if _, exists := e.pending[task.TaskID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.TaskID)
	}

	p := &Pending{
		Task:        task,
		Result:      model.NewTaskResult(&task, e.workerID),
		SubmittedAt: time.Now(),
		done:        make(chan struct{}),
	}
	e.pending[task.TaskID] = p
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(ctx, p, w)
	return nil
}

// run выполняет один task в пуле.
func (e *Executor) run(ctx context.Context, p *Pending, w Worker) {
	defer e.wg.Done()
	defer e.finish(p)

	// Семафор ограничивает параллелизм пулом ThreadCount
	if err := e.sem.Acquire(ctx, 1); err != nil {
		p.Result.MarkFailed("execution cancelled before start: " + err.Error())
		return
	}
	defer e.sem.Release(1)

	start := time.Now()

	e.dispatcher.Publish(events.TaskExecutionStarted{
		TaskType:           p.Task.TaskDefName,
		TaskID:             p.Task.TaskID,
		WorkflowInstanceID: p.Task.WorkflowInstanceID,
		WorkerID:           e.workerID,
		Timestamp:          start,
	})

	e.logger.Info("task execution started",
		"task_id", p.Task.TaskID,
		"task_type", p.Task.TaskDefName,
		"workflow_id", p.Task.WorkflowInstanceID,
		"retry_count", p.Task.RetryCount,
	)

	raw, err := e.invoke(ctx, p, w)
	duration := time.Since(start)

	switch {
	case err != nil && model.IsNonRetryable(err):
		// Терминальная ошибка: сервер не будет делать retry
		p.Result.MarkTerminallyFailed(err.Error())

		e.dispatcher.Publish(events.TaskExecutionFailure{
			TaskType:           p.Task.TaskDefName,
			TaskID:             p.Task.TaskID,
			WorkflowInstanceID: p.Task.WorkflowInstanceID,
			Reason:             err.Error(),
			Terminal:           true,
			Duration:           duration,
			Timestamp:          time.Now(),
		})

		e.logger.Warn("task failed with terminal error",
			"task_id", p.Task.TaskID,
			"task_type", p.Task.TaskDefName,
			"error", err,
		)

	case err != nil:
		// Обычная ошибка: решение о retry принимает сервер,
		// runtime сам тело worker'а не повторяет
		p.Result.MarkFailed(err.Error())
		if len(p.Result.Logs) == 0 {
			p.Result.AddLog(err.Error() + "\n" + string(debug.Stack()))
		}

		e.dispatcher.Publish(events.TaskExecutionFailure{
			TaskType:           p.Task.TaskDefName,
			TaskID:             p.Task.TaskID,
			WorkflowInstanceID: p.Task.WorkflowInstanceID,
			Reason:             err.Error(),
			Duration:           duration,
			Timestamp:          time.Now(),
		})

		e.logger.Warn("task failed",
			"task_id", p.Task.TaskID,
			"task_type", p.Task.TaskDefName,
			"error", err,
		)

	default:
		p.Result = NormalizeResult(raw, p.Result)

		e.dispatcher.Publish(events.TaskExecutionCompleted{
			TaskType:           p.Task.TaskDefName,
			TaskID:             p.Task.TaskID,
			WorkflowInstanceID: p.Task.WorkflowInstanceID,
			Status:             p.Result.Status,
			Duration:           duration,
			Timestamp:          time.Now(),
		})

		e.logger.Info("task execution completed",
			"task_id", p.Task.TaskID,
			"task_type", p.Task.TaskDefName,
			"status", p.Result.Status,
			"duration", duration,
		)
	}
}

// invoke вызывает worker с изоляцией panic.
func (e *Executor) invoke(ctx context.Context, p *Pending, w Worker) (raw any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
			p.Result.AddLog(fmt.Sprintf("panic: %v\n%s", r, debug.Stack()))
		}
	}()

	return w.Execute(ctx, &p.Task)
}

// finish закрывает done и будит runner.
func (e *Executor) finish(p *Pending) {
	close(p.done)

	// Best-effort wake-up: если канал занят, runner и так
	// соберёт результат на следующем цикле
	select {
	case e.completions <- struct{}{}:
	default:
	}
}

// CollectCompleted забирает завершённые выполнения из таблицы.
// Каждая запись возвращается ровно один раз.
func (e *Executor) CollectCompleted() []*Pending {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Pending
	for id, p := range e.pending {
		select {
		case <-p.done:
			delete(e.pending, id)
			out = append(out, p)
		default:
		}
	}
	return out
}

// InFlight возвращает количество незавершённых записей в таблице
// (включая завершённые, но ещё не собранные).
func (e *Executor) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Completions возвращает wake-up канал: сигнал приходит, когда
// какое-то выполнение завершилось.
func (e *Executor) Completions() <-chan struct{} {
	return e.completions
}

// LeaseDue возвращает lease-продления для выполнений, работающих
// дольше порога. Для каждого возвращённого результата lease-таймер
// сбрасывается.
func (e *Executor) LeaseDue(now time.Time) []*model.TaskResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*model.TaskResult
	for _, p := range e.pending {
		select {
		case <-p.done:
			continue
		default:
		}

		last := p.lastExtend
		if last.IsZero() {
			last = p.SubmittedAt
		}
		if now.Sub(last) < leaseInterval(&p.Task) {
			continue
		}

		p.lastExtend = now
		out = append(out, &model.TaskResult{
			TaskID:             p.Task.TaskID,
			WorkflowInstanceID: p.Task.WorkflowInstanceID,
			WorkerID:           e.workerID,
			Status:             model.StatusInProgress,
			ExtendLease:        true,
		})
	}
	return out
}

// leaseInterval — порог продления: 80% серверного lease.
func leaseInterval(t *model.Task) time.Duration {
	if t.ResponseTimeoutSeconds > 0 {
		return time.Duration(float64(t.ResponseTimeoutSeconds)*0.8) * time.Second
	}
	return defaultLeaseInterval
}

// Wait ждёт завершения всех отправленных выполнений не дольше grace.
// Возвращает false, если остались незавершённые (они будут брошены).
func (e *Executor) Wait(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
