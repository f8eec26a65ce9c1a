package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/client"
	"github.com/shaiso/Conveyor/config"
	"github.com/shaiso/Conveyor/events"
	"github.com/shaiso/Conveyor/model"
)

// RuntimeConfig — конфигурация Runtime.
type RuntimeConfig struct {
	// Client — клиент оркестрационного сервера (обязателен).
	Client TaskClient

	// Registry — реестр worker'ов (обязателен).
	Registry *Registry

	// Resolver — иерархия настроек (опционально; nil — окружение процесса).
	Resolver *config.Resolver

	// Dispatcher — шина событий (опционально).
	Dispatcher *events.Dispatcher

	// GracePeriod — сколько ждать незавершённые выполнения
	// при остановке (default: 30s).
	GracePeriod time.Duration

	// Logger.
	Logger *slog.Logger
}

// Runtime запускает по одному TaskRunner на каждое определение
// из реестра и управляет их жизненным циклом.
//
// Фатальная ошибка аутентификации в любом runner'е (исчерпанный
// бюджет повторов 401) останавливает runtime целиком: повторять
// запросы против мёртвой аутентификации бессмысленно.
type Runtime struct {
	client     TaskClient
	registry   *Registry
	resolver   *config.Resolver
	dispatcher *events.Dispatcher
	grace      time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewRuntime создаёт Runtime.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Client == nil {
		return nil, errors.New("worker: client is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("worker: registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = config.NewEnv()
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewDispatcher(logger)
	}

	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	return &Runtime{
		client:     cfg.Client,
		registry:   cfg.Registry,
		resolver:   resolver,
		dispatcher: dispatcher,
		grace:      grace,
		logger:     logger,
	}, nil
}

// Dispatcher возвращает шину событий runtime — для регистрации
// listener'ов до Start.
func (rt *Runtime) Dispatcher() *events.Dispatcher {
	return rt.dispatcher
}

// Start регистрирует определения task на сервере (для worker'ов
// с RegisterTaskDef) и запускает runner'ы. Возвращается сразу;
// runner'ы работают до Stop или отмены ctx.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.stopped {
		return ErrRuntimeStopped
	}
	if rt.started {
		return errors.New("worker: runtime already started")
	}

	defs := rt.registry.Definitions()
	if len(defs) == 0 {
		return errors.New("worker: no workers registered")
	}

	if err := rt.registerTaskDefs(ctx, defs); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	rt.started = true

	for _, def := range defs {
		runner, err := NewTaskRunner(TaskRunnerConfig{
			Definition:  def,
			Client:      rt.client,
			Resolver:    rt.resolver,
			Dispatcher:  rt.dispatcher,
			GracePeriod: rt.grace,
			Logger:      rt.logger,
		})
		if err != nil {
			cancel()
			return err
		}

		rt.wg.Add(1)
		go func(r *TaskRunner, taskTypes []string) {
			defer rt.wg.Done()

			err := r.Run(runCtx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}

			rt.logger.Error("task runner exited with error",
				"task_types", taskTypes,
				"error", err,
			)
			if errors.Is(err, client.ErrAuthRetriesExhausted) {
				// Остальные runner'ы используют те же credentials —
				// останавливаем runtime целиком
				cancel()
			}
		}(runner, def.TaskTypes)
	}

	rt.logger.Info("worker runtime started", "workers", len(defs))
	return nil
}

// registerTaskDefs отправляет на сервер определения task для
// worker'ов с включённым RegisterTaskDef.
func (rt *Runtime) registerTaskDefs(ctx context.Context, defs []*Definition) error {
	var taskDefs []model.TaskDef
	for _, def := range defs {
		if !def.RegisterTaskDef {
			continue
		}

		td := model.TaskDef{}
		if def.TaskDef != nil {
			td = *def.TaskDef
		}
		if td.Name == "" {
			td.Name = def.TaskTypes[0]
		}
		taskDefs = append(taskDefs, td)
	}
	if len(taskDefs) == 0 {
		return nil
	}

	if err := rt.client.RegisterTaskDef(ctx, taskDefs...); err != nil {
		if errors.Is(err, client.ErrAuthRetriesExhausted) {
			return err
		}
		// Регистрация — best-effort: сервер может уже знать определения
		rt.logger.Warn("failed to register task definitions", "error", err)
		return nil
	}

	rt.logger.Info("task definitions registered", "count", len(taskDefs))
	return nil
}

// Stop останавливает runner'ы и дожидается их завершения,
// включая grace period на незавершённые выполнения.
// Повторные вызовы безопасны.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if rt.stopped || !rt.started {
		rt.stopped = true
		rt.mu.Unlock()
		return
	}
	rt.stopped = true
	cancel := rt.cancel
	rt.mu.Unlock()

	rt.logger.Info("stopping worker runtime")
	cancel()
	rt.wg.Wait()
	rt.logger.Info("worker runtime stopped")
}

// Wait блокируется до завершения всех runner'ов (например после
// фатальной ошибки аутентификации или отмены ctx из Start).
func (rt *Runtime) Wait() {
	rt.wg.Wait()
}
