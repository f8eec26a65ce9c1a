// Package config реализует иерархию настроек worker'ов.
//
// Приоритет (от высшего к низшему):
//
//  1. Переменная окружения conductor.worker.<task_type>.<property>
//  2. Переменная окружения conductor.worker.all.<property>
//  3. Значение по умолчанию, заданное в коде при регистрации worker'а
//
// Поддерживаемые properties: poll_interval, domain, worker_id,
// thread_count, register_task_def, poll_timeout, lease_extend_enabled, paused.
package config

import (
	"os"
	"strconv"
	"time"
)

// Имена properties.
const (
	PropPollInterval       = "poll_interval"
	PropDomain             = "domain"
	PropWorkerID           = "worker_id"
	PropThreadCount        = "thread_count"
	PropRegisterTaskDef    = "register_task_def"
	PropPollTimeout        = "poll_timeout"
	PropLeaseExtendEnabled = "lease_extend_enabled"
	PropPaused             = "paused"
)

const (
	keyPrefix = "conductor.worker."
	keyAll    = "all"
)

// Props — настройки одного worker'а после применения иерархии.
type Props struct {
	// PollInterval — пауза между poll-циклами.
	PollInterval time.Duration

	// Domain — логический раздел очереди task'ов.
	Domain string

	// WorkerID — идентификатор worker'а, отправляемый серверу.
	WorkerID string

	// ThreadCount — максимум одновременных выполнений.
	ThreadCount int

	// RegisterTaskDef — регистрировать ли определение task на сервере.
	RegisterTaskDef bool

	// PollTimeout — таймаут одного poll-запроса (long poll).
	PollTimeout time.Duration

	// LeaseExtendEnabled — продлевать ли lease долгих task'ов.
	LeaseExtendEnabled bool

	// Paused — пропускать ли poll-циклы целиком.
	Paused bool
}

// Lookup — функция чтения переменной окружения.
// Подменяется в тестах.
type Lookup func(key string) (string, bool)

// Resolver применяет иерархию настроек к значениям из кода.
type Resolver struct {
	lookup Lookup
}

// New создаёт Resolver с указанной функцией чтения окружения.
func New(lookup Lookup) *Resolver {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Resolver{lookup: lookup}
}

// NewEnv создаёт Resolver поверх переменных окружения процесса.
func NewEnv() *Resolver {
	return New(os.LookupEnv)
}

// Resolve возвращает настройки worker'а для данного типа task:
// code-level defaults, перекрытые conductor.worker.all.*,
// перекрытые conductor.worker.<taskType>.*.
func (r *Resolver) Resolve(taskType string, defaults Props) Props {
	p := defaults

	if v, ok := r.prop(taskType, PropPollInterval); ok {
		if d, err := parseDuration(v); err == nil {
			p.PollInterval = d
		}
	}
	if v, ok := r.prop(taskType, PropDomain); ok {
		p.Domain = v
	}
	if v, ok := r.prop(taskType, PropWorkerID); ok {
		p.WorkerID = v
	}
	if v, ok := r.prop(taskType, PropThreadCount); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.ThreadCount = n
		}
	}
	if v, ok := r.prop(taskType, PropRegisterTaskDef); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.RegisterTaskDef = b
		}
	}
	if v, ok := r.prop(taskType, PropPollTimeout); ok {
		if d, err := parseDuration(v); err == nil {
			p.PollTimeout = d
		}
	}
	if v, ok := r.prop(taskType, PropLeaseExtendEnabled); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.LeaseExtendEnabled = b
		}
	}
	p.Paused = r.Paused(taskType)

	return p
}

// Paused проверяет pause switch для типа task.
// Вызывается на каждом poll-цикле: переключение окружения
// действует без перезапуска процесса.
func (r *Resolver) Paused(taskType string) bool {
	if v, ok := r.prop(taskType, PropPaused); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return false
}

// prop ищет property сначала для конкретного типа task, затем для "all".
func (r *Resolver) prop(taskType, name string) (string, bool) {
	if v, ok := r.lookup(keyPrefix + taskType + "." + name); ok && v != "" {
		return v, true
	}
	if v, ok := r.lookup(keyPrefix + keyAll + "." + name); ok && v != "" {
		return v, true
	}
	return "", false
}

// parseDuration парсит длительность: Go-формат ("5s", "300ms")
// или целое число миллисекунд.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
