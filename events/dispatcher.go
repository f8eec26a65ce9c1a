package events

import (
	"log/slog"
	"sync"
)

// Listener получает события одного или нескольких Kind.
//
// Реализации должны быть сравнимыми (указатель на структуру):
// Unregister находит listener по равенству интерфейсных значений.
type Listener interface {
	OnEvent(e Event)
}

// funcListener — адаптер функции к интерфейсу Listener.
// Указатель, чтобы значение оставалось сравнимым.
type funcListener struct {
	fn func(Event)
}

func (l *funcListener) OnEvent(e Event) { l.fn(e) }

// ListenerFunc оборачивает функцию в Listener.
// Возвращённое значение нужно сохранить, чтобы потом сделать Unregister.
func ListenerFunc(fn func(Event)) Listener {
	return &funcListener{fn: fn}
}

// registration — один зарегистрированный listener.
type registration struct {
	listener Listener

	// async — доставлять в отдельной горутине, не блокируя публикацию.
	async bool
}

// Dispatcher — типизированная pub/sub шина по Kind события.
//
// Все методы потокобезопасны. Публикация без зарегистрированных
// listener'ов — быстрый no-op.
type Dispatcher struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[Kind][]registration
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:    logger,
		listeners: make(map[Kind][]registration),
	}
}

// Register регистрирует синхронный listener для типа события.
// Повторная регистрация той же пары (kind, listener) — no-op.
func (d *Dispatcher) Register(kind Kind, l Listener) {
	d.register(kind, l, false)
}

// RegisterAsync регистрирует listener, которому события доставляются
// в отдельной горутине: публикующая сторона не ждёт обработки.
func (d *Dispatcher) RegisterAsync(kind Kind, l Listener) {
	d.register(kind, l, true)
}

func (d *Dispatcher) register(kind Kind, l Listener, async bool) {
	if l == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, reg := range d.listeners[kind] {
		if reg.listener == l {
			return
		}
	}
	d.listeners[kind] = append(d.listeners[kind], registration{listener: l, async: async})
}

// Unregister удаляет listener для типа события.
// Отсутствующая пара (kind, listener) — no-op.
func (d *Dispatcher) Unregister(kind Kind, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.listeners[kind]
	for i, reg := range regs {
		if reg.listener == l {
			d.listeners[kind] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Publish доставляет событие всем listener'ам его Kind.
//
// Доставка best-effort: panic одного listener'а логируется и не
// мешает остальным. Без listener'ов вызов — быстрый no-op.
func (d *Dispatcher) Publish(e Event) {
	d.mu.RLock()
	regs := d.listeners[e.EventKind()]
	d.mu.RUnlock()

	if len(regs) == 0 {
		return
	}

	for _, reg := range regs {
		if reg.async {
			go d.deliver(reg.listener, e)
		} else {
			d.deliver(reg.listener, e)
		}
	}
}

// deliver вызывает listener с изоляцией panic.
func (d *Dispatcher) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event listener panicked",
				"kind", e.EventKind(),
				"panic", r,
			)
		}
	}()

	l.OnEvent(e)
}
