package client

import (
	"testing"
	"time"
)

func TestAuthRetryPolicy_StoppedOnNthAttempt(t *testing.T) {
	p := NewAuthRetryPolicy(AuthRetryConfig{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	})

	const endpoint = "/workflow/start"

	// Первый 401 — ещё retry
	if _, retry := p.OnUnauthorized(endpoint); !retry {
		t.Fatal("first 401 should allow retry")
	}
	if st := p.State(endpoint); st != StateRetrying {
		t.Errorf("expected RETRYING after first 401, got %s", st)
	}

	// Второй 401 (max_attempts=2) — STOPPED, без третьей попытки
	if _, retry := p.OnUnauthorized(endpoint); retry {
		t.Fatal("second 401 must transition to STOPPED")
	}
	if st := p.State(endpoint); st != StateStopped {
		t.Errorf("expected STOPPED, got %s", st)
	}
}

func TestAuthRetryPolicy_SuccessResetsCounter(t *testing.T) {
	p := NewAuthRetryPolicy(AuthRetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})

	const endpoint = "/tasks"

	p.OnUnauthorized(endpoint)
	p.OnUnauthorized(endpoint)
	if p.Attempts(endpoint) != 2 {
		t.Fatalf("expected 2 attempts, got %d", p.Attempts(endpoint))
	}

	// Успех сбрасывает счётчик в 0
	p.OnSuccess(endpoint)
	if p.Attempts(endpoint) != 0 {
		t.Errorf("success must reset attempts to 0, got %d", p.Attempts(endpoint))
	}
	if st := p.State(endpoint); st != StateHealthy {
		t.Errorf("expected HEALTHY after success, got %s", st)
	}

	// После сброса снова доступны все попытки
	for i := 0; i < 2; i++ {
		if _, retry := p.OnUnauthorized(endpoint); !retry {
			t.Fatalf("attempt %d after reset should allow retry", i+1)
		}
	}
}

func TestAuthRetryPolicy_DelayWithinBounds(t *testing.T) {
	maxDelay := 50 * time.Millisecond
	p := NewAuthRetryPolicy(AuthRetryConfig{
		MaxAttempts:   100,
		BaseDelay:     time.Millisecond,
		MaxDelay:      maxDelay,
		JitterPercent: 0.2,
	})

	const endpoint = "/tasks/poll/batch/charge"

	for i := 0; i < 50; i++ {
		delay, retry := p.OnUnauthorized(endpoint)
		if !retry {
			break
		}
		if delay < 0 || delay > maxDelay {
			t.Fatalf("delay %v outside [0, %v] on attempt %d", delay, maxDelay, i+1)
		}
	}
}

func TestAuthRetryPolicy_EndpointsIndependent(t *testing.T) {
	p := NewAuthRetryPolicy(AuthRetryConfig{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	})

	p.OnUnauthorized("/tasks")
	p.OnUnauthorized("/tasks")

	if st := p.State("/tasks"); st != StateStopped {
		t.Errorf("expected /tasks STOPPED, got %s", st)
	}
	if st := p.State("/workflow/start"); st != StateHealthy {
		t.Errorf("other endpoints must stay HEALTHY, got %s", st)
	}
}

func TestIsAuthDependent(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/tasks/poll/batch/charge", true},
		{"/tasks", true},
		{"/workflow/start", true},
		{"/metadata/taskdefs", true},
		{"/token", false},
		{"/health", false},
	}

	for _, tt := range tests {
		if got := IsAuthDependent(tt.path); got != tt.want {
			t.Errorf("IsAuthDependent(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
