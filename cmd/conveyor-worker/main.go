// Conveyor Worker — хост-процесс для worker'ов оркестрационного сервера.
//
// Процесс:
//   - Poll'ит tasks у сервера по HTTP
//   - Выполняет зарегистрированные worker'ы в ограниченном пуле
//   - Отправляет результаты обратно
//   - Отдаёт /healthz и /metrics
//
// Демонстрационная регистрация worker'ов — в registerWorkers;
// боевые процессы собирают свой main поверх пакетов client и worker.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/client"
	"github.com/shaiso/Conveyor/events"
	"github.com/shaiso/Conveyor/history"
	"github.com/shaiso/Conveyor/model"
	"github.com/shaiso/Conveyor/supervisor"
	"github.com/shaiso/Conveyor/telemetry"
	"github.com/shaiso/Conveyor/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Режим "процесс на worker": родитель только супервизирует
	if os.Getenv("CONVEYOR_SUPERVISED") == "true" && os.Getenv("CONVEYOR_WORKER_ONLY") == "" {
		runSupervisor(ctx, logger)
		return
	}

	// Клиент оркестрационного сервера
	c := client.New(client.Config{
		BaseURL:   os.Getenv("CONDUCTOR_SERVER_URL"),
		KeyID:     os.Getenv("CONDUCTOR_AUTH_KEY"),
		KeySecret: os.Getenv("CONDUCTOR_AUTH_SECRET"),
		Logger:    logger,
	})

	registry := worker.NewRegistry()
	if err := registerWorkers(registry); err != nil {
		logger.Error("failed to register workers", "error", err)
		os.Exit(1)
	}

	rt, err := worker.NewRuntime(worker.RuntimeConfig{
		Client:   c,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create runtime", "error", err)
		os.Exit(1)
	}

	// Метрики poll'ов и выполнений
	events.NewMetricsListener(nil).Bind(rt.Dispatcher())

	// Публикация событий в RabbitMQ (опционально)
	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		amqpListener, err := events.NewAMQPListener(events.AMQPConfig{
			URL:    url,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("RabbitMQ not available, events will not be forwarded", "error", err)
		} else {
			defer amqpListener.Close()
			amqpListener.Bind(rt.Dispatcher())
			logger.Info("RabbitMQ connected")
		}
	}

	// Журнал выполнений в PostgreSQL (опционально)
	if os.Getenv("HISTORY_DB_URL") != "" {
		pool, err := history.NewPool(ctx)
		if err != nil {
			logger.Warn("history database not available", "error", err)
		} else {
			defer pool.Close()
			store := history.NewStore(pool)
			if err := store.EnsureSchema(ctx); err != nil {
				logger.Warn("failed to ensure history schema", "error", err)
			} else {
				history.NewListener(store, logger).Bind(rt.Dispatcher())
				logger.Info("history database connected")
			}
		}
	}

	// Запускаем runtime
	if err := rt.Start(ctx); err != nil {
		logger.Error("failed to start runtime", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8090"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	rt.Stop()
	logger.Info("conveyor-worker stopped")
}

// registerWorkers регистрирует worker'ы процесса.
//
// CONVEYOR_WORKER_ONLY ограничивает процесс одним типом task —
// так supervisor изолирует worker'ы по процессам.
func registerWorkers(registry *worker.Registry) error {
	only := os.Getenv("CONVEYOR_WORKER_ONLY")

	for _, def := range demoDefinitions() {
		if only != "" && def.TaskTypes[0] != only {
			continue
		}
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// demoDefinitions — демонстрационные worker'ы.
func demoDefinitions() []worker.Definition {
	return []worker.Definition{
		{
			TaskTypes:    []string{"echo"},
			PollInterval: time.Second,
			ThreadCount:  4,
			Worker: worker.WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
				return task.InputData, nil
			}),
		},
		{
			TaskTypes:          []string{"sleep"},
			PollInterval:       time.Second,
			ThreadCount:        2,
			LeaseExtendEnabled: true,
			Worker: worker.ArgsWorker(
				[]worker.Param{{Name: "seconds", Default: 1}},
				func(ctx context.Context, args worker.Args) (any, error) {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(time.Duration(args.Int("seconds")) * time.Second):
					}
					return map[string]any{"slept": args.Int("seconds")}, nil
				},
			),
		},
	}
}

// runSupervisor запускает по дочернему процессу на каждый тип task.
func runSupervisor(ctx context.Context, logger *slog.Logger) {
	var specs []supervisor.Spec
	for _, def := range demoDefinitions() {
		taskType := def.TaskTypes[0]
		spec, err := supervisor.SelfSpec(
			"worker-"+taskType,
			"CONVEYOR_WORKER_ONLY="+taskType,
			"CONVEYOR_SUPERVISED=false",
			"WORKER_PORT=0",
		)
		if err != nil {
			logger.Error("failed to build process spec", "error", err)
			os.Exit(1)
		}
		specs = append(specs, spec)
	}

	s, err := supervisor.New(supervisor.Config{Specs: specs})
	if err != nil {
		logger.Error("failed to create supervisor", "error", err)
		os.Exit(1)
	}

	if err := s.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	logger.Info("supervising worker processes", "processes", strings.Join(names, ","))

	<-ctx.Done()
	s.Stop()
	logger.Info("conveyor-worker supervisor stopped")
}
