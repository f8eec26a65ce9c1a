package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Conveyor/model"
)

// Param — явное описание формального параметра worker-функции.
//
// Список параметров задаётся при регистрации: binding работает по
// описаниям, без инспекции сигнатуры во время выполнения.
type Param struct {
	// Name — имя параметра во входных данных task.
	Name string

	// Default — значение, если входные данные не содержат Name.
	// Если Default тоже nil — параметр связывается с nil,
	// это не ошибка.
	Default any

	// New — фабрика указателя на составной тип: если задана и
	// входное значение — вложенный map, значение десериализуется
	// в созданный экземпляр (один уровень структурирования).
	// Примитивные значения проходят без преобразований.
	New func() any
}

// Args — связанные аргументы worker-функции по имени.
type Args map[string]any

// String возвращает строковый аргумент (пустая строка, если нет).
func (a Args) String(name string) string {
	if s, ok := a[name].(string); ok {
		return s
	}
	return ""
}

// Int возвращает целочисленный аргумент.
// JSON-числа приходят как float64 — конвертируются.
func (a Args) Int(name string) int {
	switch v := a[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float возвращает число с плавающей точкой.
func (a Args) Float(name string) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Bool возвращает булев аргумент.
func (a Args) Bool(name string) bool {
	if b, ok := a[name].(bool); ok {
		return b
	}
	return false
}

// BindParams связывает входные данные task с описаниями параметров.
//
// Для каждого параметра значение ищется по имени во входных данных,
// затем берётся Default, затем nil — отсутствие значения не ошибка.
// Ошибку даёт только несовпадение типа при структурировании
// составного значения; её вызывающая сторона (Executor) превращает
// в результат FAILED.
func BindParams(task *model.Task, params []Param) (Args, error) {
	args := make(Args, len(params))

	for _, p := range params {
		value, ok := task.Input(p.Name)
		if !ok {
			value = p.Default
		}

		if value != nil && p.New != nil {
			structured, err := structure(value, p.New)
			if err != nil {
				return nil, fmt.Errorf("bind parameter %q: %w", p.Name, err)
			}
			value = structured
		}

		args[p.Name] = value
	}

	return args, nil
}

// structure десериализует вложенный map в составной тип параметра.
// Один уровень автоматического структурирования: значение уже
// нужного типа проходит как есть.
func structure(value any, newFn func() any) (any, error) {
	target := newFn()

	// Значение уже нужного типа — без round-trip
	if fmt.Sprintf("%T", value) == fmt.Sprintf("%T", target) {
		return value, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal input value: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("structure into %T: %w", target, err)
	}
	return target, nil
}

// argsWorker — worker с именованными параметрами.
type argsWorker struct {
	params []Param
	fn     func(ctx context.Context, args Args) (any, error)
}

// ArgsWorker создаёт Worker с явным списком параметров: перед вызовом
// fn входные данные task связываются через BindParams.
func ArgsWorker(params []Param, fn func(ctx context.Context, args Args) (any, error)) Worker {
	return &argsWorker{params: params, fn: fn}
}

// Execute реализует Worker.
func (w *argsWorker) Execute(ctx context.Context, task *model.Task) (any, error) {
	args, err := BindParams(task, w.params)
	if err != nil {
		return nil, err
	}
	return w.fn(ctx, args)
}
