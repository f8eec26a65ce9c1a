package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/model"
)

func noopWorker() Worker {
	return WorkerFunc(func(ctx context.Context, task *model.Task) (any, error) {
		return nil, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Definition{
		TaskTypes: []string{"ship_order", "cancel_order"},
		Worker:    noopWorker(),
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	def, err := r.Get("cancel_order")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(def.TaskTypes) != 2 {
		t.Errorf("task types = %v", def.TaskTypes)
	}

	if _, err := r.Get("unknown"); !errors.Is(err, ErrNoWorker) {
		t.Errorf("Get(unknown) = %v, want ErrNoWorker", err)
	}
}

func TestRegistry_DuplicateTaskType(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Definition{TaskTypes: []string{"ship_order"}, Worker: noopWorker()}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := r.Register(Definition{TaskTypes: []string{"ship_order"}, Worker: noopWorker()})
	if !errors.Is(err, ErrDuplicateTaskType) {
		t.Errorf("duplicate register = %v, want ErrDuplicateTaskType", err)
	}
}

func TestDefinition_Validate(t *testing.T) {
	// Без типов task
	err := (&Definition{Worker: noopWorker()}).validate()
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("no task types: %v, want ErrInvalidDefinition", err)
	}

	// Без worker'а
	err = (&Definition{TaskTypes: []string{"x"}}).validate()
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("no worker: %v, want ErrInvalidDefinition", err)
	}

	// Defaults
	d := &Definition{TaskTypes: []string{"x"}, Worker: noopWorker()}
	if err := d.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if d.PollInterval != defaultPollInterval {
		t.Errorf("poll interval = %v", d.PollInterval)
	}
	if d.ThreadCount != defaultThreadCount {
		t.Errorf("thread count = %d", d.ThreadCount)
	}
	if d.WorkerID == "" || !strings.Contains(d.WorkerID, "-") {
		t.Errorf("worker id = %q, want hostname-suffix", d.WorkerID)
	}
}
