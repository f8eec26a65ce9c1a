package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/client"
	"github.com/shaiso/Conveyor/config"
	"github.com/shaiso/Conveyor/events"
	"github.com/shaiso/Conveyor/model"
)

const (
	defaultGracePeriod = 30 * time.Second

	// reportTimeout — бюджет на отправку результатов при shutdown.
	reportTimeout = 10 * time.Second

	// busyBackoff — пауза, когда пул занят целиком.
	busyBackoff = 10 * time.Millisecond
)

// TaskClient — вызовы сервера, нужные runner'у.
// Реализуется пакетом client; в тестах подменяется фейком.
type TaskClient interface {
	PollTasks(ctx context.Context, taskType string, opts client.PollOptions) ([]model.Task, error)
	UpdateTask(ctx context.Context, result *model.TaskResult) (string, error)
	RegisterTaskDef(ctx context.Context, defs ...model.TaskDef) error
}

// TaskRunnerConfig — конфигурация TaskRunner.
type TaskRunnerConfig struct {
	// Definition — определение worker'а.
	Definition *Definition

	// Client — клиент оркестрационного сервера.
	Client TaskClient

	// Resolver — иерархия настроек (опционально; nil — окружение процесса).
	Resolver *config.Resolver

	// Dispatcher — шина событий (опционально).
	Dispatcher *events.Dispatcher

	// GracePeriod — сколько ждать незавершённые выполнения при
	// остановке (default: 30s).
	GracePeriod time.Duration

	// Logger.
	Logger *slog.Logger
}

// TaskRunner — цикл poll → execute → collect → report для одного
// определения worker'а.
//
// Цикл строго последовательный: не бывает двух одновременных poll'ов
// одного определения. Выполнение task'ов при этом отложенное —
// медленный worker не задерживает следующий poll.
type TaskRunner struct {
	def      *Definition
	props    config.Props
	client   TaskClient
	executor *Executor

	dispatcher *events.Dispatcher
	resolver   *config.Resolver
	logger     *slog.Logger
	grace      time.Duration

	// rotation — индекс текущего типа task при нескольких TaskTypes.
	rotation int

	// execCancel обрывает брошенные выполнения после grace period.
	execCtx    context.Context
	execCancel context.CancelFunc
}

// NewTaskRunner создаёт TaskRunner, применяя иерархию настроек
// к значениям из Definition.
func NewTaskRunner(cfg TaskRunnerConfig) (*TaskRunner, error) {
	def := cfg.Definition
	if def == nil {
		return nil, ErrInvalidDefinition
	}
	if err := def.validate(); err != nil {
		return nil, err
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = config.NewEnv()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewDispatcher(logger)
	}

	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	// Иерархия: env per-worker > env global > значения из кода
	props := resolver.Resolve(def.TaskTypes[0], config.Props{
		PollInterval:       def.PollInterval,
		Domain:             def.Domain,
		WorkerID:           def.WorkerID,
		ThreadCount:        def.ThreadCount,
		RegisterTaskDef:    def.RegisterTaskDef,
		PollTimeout:        def.PollTimeout,
		LeaseExtendEnabled: def.LeaseExtendEnabled,
	})

	executor := NewExecutor(ExecutorConfig{
		WorkerID:    props.WorkerID,
		ThreadCount: props.ThreadCount,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	execCtx, execCancel := context.WithCancel(context.Background())

	return &TaskRunner{
		def:        def,
		props:      props,
		client:     cfg.Client,
		executor:   executor,
		dispatcher: dispatcher,
		resolver:   resolver,
		logger:     logger.With("worker_id", props.WorkerID),
		grace:      grace,
		execCtx:    execCtx,
		execCancel: execCancel,
	}, nil
}

// Run выполняет цикл до отмены ctx или фатальной ошибки auth.
//
// Каждый цикл: сбор результатов отложенных выполнений → продление
// lease → проверка paused → batch-poll (не больше свободной ёмкости
// пула) → dispatch. При ErrAuthRetriesExhausted на poll или report
// runner логирует фатальную ошибку и завершается — бесконечных
// повторов против мёртвой аутентификации не бывает.
func (r *TaskRunner) Run(ctx context.Context) error {
	r.logger.Info("task runner started",
		"task_types", r.def.TaskTypes,
		"poll_interval", r.props.PollInterval,
		"thread_count", r.props.ThreadCount,
		"domain", r.props.Domain,
		"lease_extend", r.props.LeaseExtendEnabled,
	)

	for {
		// 1. Собираем и отправляем завершённые выполнения
		if err := r.collectAndReport(ctx); err != nil {
			return r.shutdown(err)
		}

		// 2. Продлеваем lease долгих task'ов
		if err := r.extendLeases(ctx); err != nil {
			return r.shutdown(err)
		}

		select {
		case <-ctx.Done():
			return r.shutdown(nil)
		default:
		}

		taskType := r.nextTaskType()

		// 3. Pause switch — проверяется на каждом цикле
		if r.resolver.Paused(taskType) {
			r.logger.Debug("worker paused, skipping poll cycle", "task_type", taskType)
			if r.sleep(ctx, r.props.PollInterval) {
				return r.shutdown(nil)
			}
			continue
		}

		// 4. Batch не больше свободной ёмкости пула
		capacity := r.props.ThreadCount - r.executor.InFlight()
		if capacity <= 0 {
			if r.sleep(ctx, busyBackoff) {
				return r.shutdown(nil)
			}
			continue
		}

		// 5. Poll
		tasks, err := r.poll(ctx, taskType, capacity)
		if err != nil {
			if errors.Is(err, client.ErrAuthRetriesExhausted) {
				r.logger.Error("fatal: poll endpoint exhausted auth retry budget, shutting down",
					"task_type", taskType,
					"error", err,
				)
				return r.shutdown(err)
			}
			if ctx.Err() != nil {
				return r.shutdown(nil)
			}
			// Прочие ошибки poll не фатальны: пауза и следующий цикл
			if r.sleep(ctx, r.props.PollInterval) {
				return r.shutdown(nil)
			}
			continue
		}

		// 6. Dispatch: каждый task уходит в пул, цикл не ждёт
		for i := range tasks {
			if err := r.executor.Dispatch(r.execCtx, tasks[i], r.def.Worker); err != nil {
				r.logger.Warn("failed to dispatch task",
					"task_id", tasks[i].TaskID,
					"error", err,
				)
			}
		}

		// 7. Пустой poll — норма; пауза перед следующим циклом
		if len(tasks) == 0 {
			if r.sleep(ctx, r.props.PollInterval) {
				return r.shutdown(nil)
			}
		}
	}
}

// poll выполняет один batch-poll с событиями вокруг.
func (r *TaskRunner) poll(ctx context.Context, taskType string, count int) ([]model.Task, error) {
	r.dispatcher.Publish(events.PollStarted{
		TaskType:  taskType,
		Domain:    r.props.Domain,
		Count:     count,
		Timestamp: time.Now(),
	})

	start := time.Now()
	tasks, err := r.client.PollTasks(ctx, taskType, client.PollOptions{
		WorkerID: r.props.WorkerID,
		Domain:   r.props.Domain,
		Count:    count,
		Timeout:  r.props.PollTimeout,
	})
	if err != nil {
		r.dispatcher.Publish(events.PollFailure{
			TaskType:  taskType,
			Reason:    err.Error(),
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		})
		r.logger.Error("poll failed", "task_type", taskType, "error", err)
		return nil, err
	}

	r.dispatcher.Publish(events.PollCompleted{
		TaskType:  taskType,
		TaskCount: len(tasks),
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})

	if len(tasks) > 0 {
		r.logger.Debug("poll returned tasks", "task_type", taskType, "count", len(tasks))
	}
	return tasks, nil
}

// collectAndReport отправляет результаты завершённых выполнений.
// Результат отправляется не больше одного раза: запись уже удалена
// из таблицы, при ошибке отправки результат отбрасывается (сервер
// переотдаст task по своему таймауту).
func (r *TaskRunner) collectAndReport(ctx context.Context) error {
	for _, p := range r.executor.CollectCompleted() {
		if err := r.report(ctx, p.Result); err != nil {
			return err
		}
	}
	return nil
}

// report отправляет один результат.
func (r *TaskRunner) report(ctx context.Context, result *model.TaskResult) error {
	_, err := r.client.UpdateTask(ctx, result)
	if err != nil {
		if errors.Is(err, client.ErrAuthRetriesExhausted) {
			r.logger.Error("fatal: update endpoint exhausted auth retry budget, shutting down",
				"task_id", result.TaskID,
				"error", err,
			)
			return err
		}
		r.logger.Error("failed to report task result",
			"task_id", result.TaskID,
			"status", result.Status,
			"error", err,
		)
		return nil
	}

	r.logger.Debug("task result reported",
		"task_id", result.TaskID,
		"status", result.Status,
	)
	return nil
}

// extendLeases продлевает lease выполнений, работающих дольше порога.
func (r *TaskRunner) extendLeases(ctx context.Context) error {
	if !r.props.LeaseExtendEnabled {
		return nil
	}

	for _, result := range r.executor.LeaseDue(time.Now()) {
		r.logger.Debug("extending task lease", "task_id", result.TaskID)
		if err := r.report(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// nextTaskType возвращает следующий тип task по кругу.
func (r *TaskRunner) nextTaskType() string {
	tt := r.def.TaskTypes[r.rotation%len(r.def.TaskTypes)]
	r.rotation++
	return tt
}

// sleep ждёт d, просыпаясь раньше при завершении какого-то
// выполнения (чтобы отправить результат без задержки).
// Возвращает true, если пришёл сигнал остановки.
func (r *TaskRunner) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-r.executor.Completions():
		return false
	case <-time.After(d):
		return false
	}
}

// shutdown: новые poll'ы уже не выдаются; ждём уже отправленные
// выполнения не дольше grace period, отправляем то, что успело
// завершиться, остальное бросаем (результаты отбрасываются —
// сервер переотдаст task'и по своему таймауту).
func (r *TaskRunner) shutdown(cause error) error {
	r.logger.Info("task runner shutting down", "in_flight", r.executor.InFlight())

	if !r.executor.Wait(r.grace) {
		r.logger.Warn("grace period expired, abandoning executions",
			"in_flight", r.executor.InFlight(),
		)
	}
	r.execCancel()

	// Отправляем завершённые результаты на отдельном бюджете:
	// исходный ctx уже может быть отменён
	reportCtx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	for _, p := range r.executor.CollectCompleted() {
		if p.Result.Status == model.StatusInProgress {
			// Выполнение оборвано отменой — результата нет
			continue
		}
		if err := r.report(reportCtx, p.Result); err != nil {
			break
		}
	}

	r.logger.Info("task runner stopped")
	return cause
}
