// Package supervisor запускает worker-процессы и перезапускает их
// при падении.
//
// Режим "процесс на worker": вместо пула горутин в одном процессе
// каждый worker живёт в собственном OS-процессе. Падение одного
// worker'а (OOM, фатальная ошибка, утечка в нативной библиотеке)
// не трогает остальных; supervisor перезапускает упавший процесс
// с экспоненциальной задержкой.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRestartBaseDelay = time.Second
	defaultRestartMaxDelay  = 30 * time.Second
)

// Ошибки supervisor'а.
var (
	// ErrNoSpecs — нет ни одного процесса для запуска.
	ErrNoSpecs = errors.New("no process specs")

	// ErrDuplicateName — имя процесса уже занято.
	ErrDuplicateName = errors.New("duplicate process name")
)

// Spec — описание одного супервизируемого процесса.
type Spec struct {
	// Name — имя процесса в логах и статусе.
	Name string

	// Command — исполняемый файл.
	Command string

	// Args — аргументы команды.
	Args []string

	// Env — дополнительные переменные окружения (поверх окружения
	// supervisor'а).
	Env []string

	// MaxRestarts — максимум перезапусков подряд; 0 — без ограничения.
	// Счётчик сбрасывается, если процесс прожил дольше минуты.
	MaxRestarts int
}

// SelfSpec — описание процесса, который повторно запускает текущий
// бинарник с дополнительным окружением. Используется для режима
// "процесс на worker": родитель запускает сам себя с
// CONVEYOR_WORKER_ONLY=<task_type>.
func SelfSpec(name string, env ...string) (Spec, error) {
	bin, err := os.Executable()
	if err != nil {
		return Spec{}, fmt.Errorf("resolve executable: %w", err)
	}
	return Spec{Name: name, Command: bin, Env: env}, nil
}

// Config — конфигурация Supervisor.
type Config struct {
	// Specs — процессы для запуска.
	Specs []Spec

	// RestartBaseDelay — начальная задержка перезапуска (default: 1s).
	RestartBaseDelay time.Duration

	// RestartMaxDelay — потолок задержки перезапуска (default: 30s).
	RestartMaxDelay time.Duration

	// Logger.
	Logger *slog.Logger
}

// ProcessStatus — состояние одного процесса.
type ProcessStatus struct {
	// Running — процесс сейчас работает.
	Running bool

	// Restarts — количество перезапусков подряд.
	Restarts int

	// GaveUp — лимит перезапусков исчерпан, процесс больше
	// не перезапускается.
	GaveUp bool
}

// Supervisor управляет группой worker-процессов.
type Supervisor struct {
	specs     []Spec
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	statuses map[string]*ProcessStatus
	cancel   context.CancelFunc
	started  bool

	wg sync.WaitGroup
}

// New создаёт Supervisor.
func New(cfg Config) (*Supervisor, error) {
	if len(cfg.Specs) == 0 {
		return nil, ErrNoSpecs
	}

	seen := make(map[string]bool, len(cfg.Specs))
	for _, spec := range cfg.Specs {
		if spec.Name == "" || spec.Command == "" {
			return nil, fmt.Errorf("spec %q: name and command are required", spec.Name)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
		}
		seen[spec.Name] = true
	}

	baseDelay := cfg.RestartBaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultRestartBaseDelay
	}
	maxDelay := cfg.RestartMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRestartMaxDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	statuses := make(map[string]*ProcessStatus, len(cfg.Specs))
	for _, spec := range cfg.Specs {
		statuses[spec.Name] = &ProcessStatus{}
	}

	return &Supervisor{
		specs:     cfg.Specs,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		logger:    logger,
		statuses:  statuses,
	}, nil
}

// Start запускает все процессы. Возвращается сразу; процессы
// работают и перезапускаются до Stop или отмены ctx.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	for _, spec := range s.specs {
		s.wg.Add(1)
		go func(spec Spec) {
			defer s.wg.Done()
			s.supervise(runCtx, spec)
		}(spec)
	}

	s.logger.Info("supervisor started", "processes", len(s.specs))
	return nil
}

// supervise запускает процесс и перезапускает его при падении
// с экспоненциальной задержкой.
func (s *Supervisor) supervise(ctx context.Context, spec Spec) {
	delay := backoff.NewExponentialBackOff()
	delay.InitialInterval = s.baseDelay
	delay.MaxInterval = s.maxDelay
	delay.MaxElapsedTime = 0

	for {
		started := time.Now()
		err := s.runProcess(ctx, spec)
		uptime := time.Since(started)

		if ctx.Err() != nil {
			s.setStatus(spec.Name, func(st *ProcessStatus) { st.Running = false })
			return
		}

		s.logger.Warn("process exited",
			"process", spec.Name,
			"uptime", uptime,
			"error", err,
		)

		// Проживший дольше минуты процесс считается восстановившимся
		if uptime > time.Minute {
			delay.Reset()
			s.setStatus(spec.Name, func(st *ProcessStatus) { st.Restarts = 0 })
		}

		var restarts int
		s.setStatus(spec.Name, func(st *ProcessStatus) {
			st.Running = false
			st.Restarts++
			restarts = st.Restarts
		})

		if spec.MaxRestarts > 0 && restarts > spec.MaxRestarts {
			s.logger.Error("restart limit reached, giving up",
				"process", spec.Name,
				"restarts", restarts-1,
			)
			s.setStatus(spec.Name, func(st *ProcessStatus) { st.GaveUp = true })
			return
		}

		next := delay.NextBackOff()
		s.logger.Info("restarting process",
			"process", spec.Name,
			"attempt", restarts,
			"delay", next,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(next):
		}
	}
}

// runProcess запускает один экземпляр процесса и ждёт его завершения.
func (s *Supervisor) runProcess(ctx context.Context, spec Spec) error {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	s.setStatus(spec.Name, func(st *ProcessStatus) { st.Running = true })
	s.logger.Info("process started", "process", spec.Name, "pid", cmd.Process.Pid)

	return cmd.Wait()
}

func (s *Supervisor) setStatus(name string, fn func(*ProcessStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.statuses[name])
}

// Healthy возвращает true, если все процессы работают.
func (s *Supervisor) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.statuses {
		if !st.Running {
			return false
		}
	}
	return true
}

// Status возвращает снимок состояния всех процессов.
func (s *Supervisor) Status() map[string]ProcessStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ProcessStatus, len(s.statuses))
	for name, st := range s.statuses {
		out[name] = *st
	}
	return out
}

// Stop останавливает все процессы и ждёт их завершения.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	s.logger.Info("stopping supervisor")
	cancel()
	s.wg.Wait()
	s.logger.Info("supervisor stopped")
}
