package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/client"
	"github.com/shaiso/Conveyor/config"
	"github.com/shaiso/Conveyor/model"
)

// fakeTaskClient — in-memory замена клиента сервера для тестов runner'а.
type fakeTaskClient struct {
	mu        sync.Mutex
	queue     []model.Task
	pollErr   error
	updateErr error

	polls     int
	pollTypes []string
	updates   []model.TaskResult
	taskDefs  []model.TaskDef
}

func (f *fakeTaskClient) PollTasks(ctx context.Context, taskType string, opts client.PollOptions) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	f.pollTypes = append(f.pollTypes, taskType)

	if f.pollErr != nil {
		return nil, f.pollErr
	}

	n := opts.Count
	if n > len(f.queue) {
		n = len(f.queue)
	}
	out := make([]model.Task, n)
	copy(out, f.queue[:n])
	f.queue = f.queue[n:]
	return out, nil
}

func (f *fakeTaskClient) UpdateTask(ctx context.Context, result *model.TaskResult) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return "", f.updateErr
	}
	f.updates = append(f.updates, *result)
	return result.TaskID, nil
}

func (f *fakeTaskClient) RegisterTaskDef(ctx context.Context, defs ...model.TaskDef) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.taskDefs = append(f.taskDefs, defs...)
	return nil
}

func (f *fakeTaskClient) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeTaskClient) update(taskID string) (model.TaskResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.updates {
		if u.TaskID == taskID {
			return u, true
		}
	}
	return model.TaskResult{}, false
}

// waitUpdate ждёт отправку результата для task.
func waitUpdate(t *testing.T, f *fakeTaskClient, taskID string) model.TaskResult {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		if u, ok := f.update(taskID); ok {
			return u
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for result of %s", taskID)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestRunner(t *testing.T, f *fakeTaskClient, def Definition) *TaskRunner {
	t.Helper()

	if def.PollInterval == 0 {
		def.PollInterval = 5 * time.Millisecond
	}
	if def.PollTimeout == 0 {
		def.PollTimeout = time.Millisecond
	}

	r, err := NewTaskRunner(TaskRunnerConfig{
		Definition:  &def,
		Client:      f,
		Resolver:    config.New(func(string) (string, bool) { return "", false }),
		GracePeriod: time.Second,
	})
	if err != nil {
		t.Fatalf("NewTaskRunner: %v", err)
	}
	return r
}

// startRunner запускает Run в горутине и возвращает cancel + канал ошибки.
func startRunner(r *TaskRunner) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx)
	}()
	return cancel, errCh
}

func waitRunnerExit(t *testing.T, errCh <-chan error) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not exit")
		return nil
	}
}

func TestTaskRunner_ReportsCompletedResult(t *testing.T) {
	f := &fakeTaskClient{
		queue: []model.Task{{
			TaskID:             "t-1",
			WorkflowInstanceID: "wf-1",
			TaskDefName:        "ship_order",
			InputData:          map[string]any{"orderId": "o-7"},
		}},
	}

	r := newTestRunner(t, f, Definition{
		TaskTypes: []string{"ship_order"},
		Worker: WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
			return map[string]any{"orderId": task.InputData["orderId"], "shipped": true}, nil
		}),
	})
	cancel, errCh := startRunner(r)

	u := waitUpdate(t, f, "t-1")
	if u.Status != model.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", u.Status)
	}
	if u.OutputData["orderId"] != "o-7" {
		t.Errorf("output = %v", u.OutputData)
	}

	cancel()
	if err := waitRunnerExit(t, errCh); err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}

func TestTaskRunner_SlowWorkerDoesNotBlockPolling(t *testing.T) {
	f := &fakeTaskClient{
		queue: []model.Task{{TaskID: "slow-1", TaskDefName: "ship_order"}},
	}

	release := make(chan struct{})
	r := newTestRunner(t, f, Definition{
		TaskTypes:   []string{"ship_order"},
		ThreadCount: 2,
		Worker: WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
			<-release
			return map[string]any{"done": true}, nil
		}),
	})
	cancel, errCh := startRunner(r)
	defer cancel()

	// Пока slow-1 висит в worker'е, poll-цикл должен продолжаться
	base := f.pollCount()
	deadline := time.After(2 * time.Second)
	for f.pollCount() < base+3 {
		select {
		case <-deadline:
			t.Fatal("polling stalled behind a slow worker")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(release)

	u := waitUpdate(t, f, "slow-1")
	if u.Status != model.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", u.Status)
	}

	cancel()
	waitRunnerExit(t, errCh)
}

func TestTaskRunner_AuthExhaustionOnPollStops(t *testing.T) {
	f := &fakeTaskClient{
		pollErr: fmt.Errorf("GET /tasks/poll: %w", client.ErrAuthRetriesExhausted),
	}

	r := newTestRunner(t, f, Definition{
		TaskTypes: []string{"ship_order"},
		Worker: WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
			return nil, nil
		}),
	})
	_, errCh := startRunner(r)

	// Runner останавливается сам, без отмены ctx
	err := waitRunnerExit(t, errCh)
	if !errors.Is(err, client.ErrAuthRetriesExhausted) {
		t.Errorf("Run returned %v, want ErrAuthRetriesExhausted", err)
	}
}

func TestTaskRunner_AuthExhaustionOnReportStops(t *testing.T) {
	f := &fakeTaskClient{
		queue:     []model.Task{{TaskID: "t-1", TaskDefName: "ship_order"}},
		updateErr: client.ErrAuthRetriesExhausted,
	}

	r := newTestRunner(t, f, Definition{
		TaskTypes: []string{"ship_order"},
		Worker: WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
			return nil, nil
		}),
	})
	_, errCh := startRunner(r)

	err := waitRunnerExit(t, errCh)
	if !errors.Is(err, client.ErrAuthRetriesExhausted) {
		t.Errorf("Run returned %v, want ErrAuthRetriesExhausted", err)
	}
}

func TestTaskRunner_PausedSkipsPolls(t *testing.T) {
	f := &fakeTaskClient{
		queue: []model.Task{{TaskID: "t-1", TaskDefName: "ship_order"}},
	}

	def := Definition{
		TaskTypes:    []string{"ship_order"},
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  time.Millisecond,
		Worker: WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
			return nil, nil
		}),
	}
	r, err := NewTaskRunner(TaskRunnerConfig{
		Definition: &def,
		Client:     f,
		Resolver: config.New(func(key string) (string, bool) {
			if key == "conductor.worker.ship_order.paused" {
				return "true", true
			}
			return "", false
		}),
		GracePeriod: time.Second,
	})
	if err != nil {
		t.Fatalf("NewTaskRunner: %v", err)
	}
	cancel, errCh := startRunner(r)

	time.Sleep(60 * time.Millisecond)
	if got := f.pollCount(); got != 0 {
		t.Errorf("paused worker made %d polls, want 0", got)
	}

	cancel()
	waitRunnerExit(t, errCh)
}

func TestTaskRunner_RotatesTaskTypes(t *testing.T) {
	f := &fakeTaskClient{}

	r := newTestRunner(t, f, Definition{
		TaskTypes: []string{"pack_order", "ship_order"},
		Worker: WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
			return nil, nil
		}),
	})
	cancel, errCh := startRunner(r)

	deadline := time.After(2 * time.Second)
	for f.pollCount() < 4 {
		select {
		case <-deadline:
			t.Fatal("not enough polls")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	waitRunnerExit(t, errCh)

	// Один тип за цикл, по кругу
	f.mu.Lock()
	types := f.pollTypes[:4]
	f.mu.Unlock()
	want := []string{"pack_order", "ship_order", "pack_order", "ship_order"}
	for i, tt := range want {
		if types[i] != tt {
			t.Fatalf("poll order = %v, want %v", types, want)
		}
	}
}

func TestRuntime_StartRegistersTaskDefs(t *testing.T) {
	f := &fakeTaskClient{}

	registry := NewRegistry()
	err := registry.Register(Definition{
		TaskTypes:       []string{"ship_order"},
		RegisterTaskDef: true,
		PollInterval:    5 * time.Millisecond,
		Worker: WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
			return nil, nil
		}),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rt, err := NewRuntime(RuntimeConfig{
		Client:      f,
		Registry:    registry,
		Resolver:    config.New(func(string) (string, bool) { return "", false }),
		GracePeriod: time.Second,
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Stop()

	f.mu.Lock()
	defs := append([]model.TaskDef(nil), f.taskDefs...)
	f.mu.Unlock()
	if len(defs) != 1 || defs[0].Name != "ship_order" {
		t.Errorf("registered task defs = %v", defs)
	}
}

func TestRuntime_StartRequiresWorkers(t *testing.T) {
	rt, err := NewRuntime(RuntimeConfig{
		Client:   &fakeTaskClient{},
		Registry: NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	if err := rt.Start(context.Background()); err == nil {
		t.Fatal("Start with empty registry must fail")
	}
}

func TestRuntime_StopIsIdempotent(t *testing.T) {
	f := &fakeTaskClient{}

	registry := NewRegistry()
	if err := registry.Register(Definition{
		TaskTypes:    []string{"ship_order"},
		PollInterval: 5 * time.Millisecond,
		Worker: WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
			return nil, nil
		}),
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rt, err := NewRuntime(RuntimeConfig{
		Client:      f,
		Registry:    registry,
		Resolver:    config.New(func(string) (string, bool) { return "", false }),
		GracePeriod: time.Second,
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rt.Stop()
	rt.Stop()

	if err := rt.Start(context.Background()); !errors.Is(err, ErrRuntimeStopped) {
		t.Errorf("Start after Stop = %v, want ErrRuntimeStopped", err)
	}
}
