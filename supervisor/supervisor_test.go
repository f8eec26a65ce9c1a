package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoSpecs) {
		t.Errorf("empty config: %v, want ErrNoSpecs", err)
	}

	_, err := New(Config{Specs: []Spec{
		{Name: "w", Command: "sleep"},
		{Name: "w", Command: "sleep"},
	}})
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate names: %v, want ErrDuplicateName", err)
	}

	if _, err := New(Config{Specs: []Spec{{Name: "w"}}}); err == nil {
		t.Error("spec without command must fail")
	}
}

func TestSupervisor_RunsAndStops(t *testing.T) {
	s, err := New(Config{
		Specs:  []Spec{{Name: "sleeper", Command: "sleep", Args: []string{"60"}}},
		Logger: nil,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !s.Healthy() {
		select {
		case <-deadline:
			t.Fatal("process never became healthy")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Stop()

	if s.Healthy() {
		t.Error("stopped supervisor must not report healthy")
	}
}

func TestSupervisor_GivesUpAfterRestartLimit(t *testing.T) {
	s, err := New(Config{
		Specs: []Spec{{
			Name:        "crasher",
			Command:     "false",
			MaxRestarts: 2,
		}},
		RestartBaseDelay: time.Millisecond,
		RestartMaxDelay:  5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(5 * time.Second)
	for {
		st := s.Status()["crasher"]
		if st.GaveUp {
			if st.Running {
				t.Error("gave-up process must not be running")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("supervisor never gave up: %+v", st)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
