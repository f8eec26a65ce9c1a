package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/model"
)

// Значения по умолчанию для Definition.
const (
	defaultPollInterval = time.Second
	defaultThreadCount  = 1
	defaultPollTimeout  = 100 * time.Millisecond
)

// Worker — выполняемая единица, привязанная к типу task.
//
// Execute получает task целиком (вариант "один нетипизированный
// параметр"). Возвращаемое значение нормализуется в TaskResult
// (см. NormalizeResult): структура, map, *model.TaskResult,
// model.InProgress или произвольное сериализуемое значение.
type Worker interface {
	Execute(ctx context.Context, task *model.Task) (any, error)
}

// WorkerFunc — адаптер функции к интерфейсу Worker.
type WorkerFunc func(ctx context.Context, task *model.Task) (any, error)

// Execute реализует Worker.
func (f WorkerFunc) Execute(ctx context.Context, task *model.Task) (any, error) {
	return f(ctx, task)
}

// Definition — worker вместе с его конфигурацией выполнения.
//
// Значения из кода — низший уровень иерархии настроек: их могут
// перекрыть переменные окружения conductor.worker.* (см. пакет config).
type Definition struct {
	// TaskTypes — имена типов task. Обычно одно; если несколько —
	// runner опрашивает их по кругу, один тип за цикл.
	TaskTypes []string

	// Worker — выполняемая единица.
	Worker Worker

	// PollInterval — пауза между poll-циклами (default: 1s).
	PollInterval time.Duration

	// Domain — логический раздел очереди (опционально).
	Domain string

	// WorkerID — идентификатор worker'а. Default: hostname-<uuid>.
	WorkerID string

	// ThreadCount — максимум одновременных выполнений (default: 1).
	// Он же — верхняя граница batch'а одного poll.
	ThreadCount int

	// PollTimeout — long-poll таймаут на стороне сервера (default: 100ms).
	PollTimeout time.Duration

	// LeaseExtendEnabled — продлевать lease долгих task'ов.
	LeaseExtendEnabled bool

	// RegisterTaskDef — зарегистрировать определение task на сервере
	// при старте runtime.
	RegisterTaskDef bool

	// TaskDef — определение для регистрации (используется только
	// при RegisterTaskDef; имя берётся из TaskTypes[0], если пустое).
	TaskDef *model.TaskDef
}

// validate проверяет определение и подставляет значения по умолчанию.
func (d *Definition) validate() error {
	if len(d.TaskTypes) == 0 {
		return fmt.Errorf("%w: at least one task type is required", ErrInvalidDefinition)
	}
	for _, tt := range d.TaskTypes {
		if tt == "" {
			return fmt.Errorf("%w: empty task type name", ErrInvalidDefinition)
		}
	}
	if d.Worker == nil {
		return fmt.Errorf("%w: worker is required", ErrInvalidDefinition)
	}

	if d.PollInterval <= 0 {
		d.PollInterval = defaultPollInterval
	}
	if d.ThreadCount <= 0 {
		d.ThreadCount = defaultThreadCount
	}
	if d.PollTimeout <= 0 {
		d.PollTimeout = defaultPollTimeout
	}
	if d.WorkerID == "" {
		d.WorkerID = defaultWorkerID()
	}
	return nil
}

// defaultWorkerID генерирует идентификатор worker'а: hostname-<uuid>.
func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.New().String()[:8]
}

// Registry — явный реестр worker'ов по типу task.
//
// Заполняется явными вызовами Register при старте процесса:
// никакого сканирования аннотированных функций и reflection.
type Registry struct {
	mu          sync.RWMutex
	definitions []*Definition
	byType      map[string]*Definition
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[string]*Definition),
	}
}

// Register добавляет определение worker'а.
// Повторная регистрация типа task — ошибка.
func (r *Registry) Register(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tt := range def.TaskTypes {
		if _, exists := r.byType[tt]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTaskType, tt)
		}
	}

	d := def
	r.definitions = append(r.definitions, &d)
	for _, tt := range d.TaskTypes {
		r.byType[tt] = &d
	}
	return nil
}

// Get возвращает определение worker'а для типа task.
func (r *Registry) Get(taskType string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byType[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWorker, taskType)
	}
	return def, nil
}

// Definitions возвращает все зарегистрированные определения.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, len(r.definitions))
	copy(out, r.definitions)
	return out
}
