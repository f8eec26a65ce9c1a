package config

import (
	"testing"
	"time"
)

// mapLookup создаёт Lookup поверх map (вместо окружения).
func mapLookup(env map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestResolve_CodeDefaults(t *testing.T) {
	r := New(mapLookup(nil))

	defaults := Props{
		PollInterval: 100 * time.Millisecond,
		ThreadCount:  4,
		Domain:       "payments",
	}

	p := r.Resolve("charge", defaults)

	if p.PollInterval != 100*time.Millisecond {
		t.Errorf("expected default poll interval, got %v", p.PollInterval)
	}
	if p.ThreadCount != 4 {
		t.Errorf("expected default thread count, got %d", p.ThreadCount)
	}
	if p.Domain != "payments" {
		t.Errorf("expected default domain, got %q", p.Domain)
	}
	if p.Paused {
		t.Error("paused should default to false")
	}
}

func TestResolve_GlobalOverride(t *testing.T) {
	r := New(mapLookup(map[string]string{
		"conductor.worker.all.poll_interval": "250ms",
		"conductor.worker.all.domain":        "staging",
	}))

	p := r.Resolve("charge", Props{PollInterval: time.Second, Domain: "prod"})

	if p.PollInterval != 250*time.Millisecond {
		t.Errorf("global override should win over code default, got %v", p.PollInterval)
	}
	if p.Domain != "staging" {
		t.Errorf("expected staging, got %q", p.Domain)
	}
}

func TestResolve_PerWorkerWinsOverGlobal(t *testing.T) {
	r := New(mapLookup(map[string]string{
		"conductor.worker.all.thread_count":    "2",
		"conductor.worker.charge.thread_count": "8",
		"conductor.worker.all.worker_id":       "shared",
		"conductor.worker.charge.worker_id":    "charge-1",
	}))

	p := r.Resolve("charge", Props{ThreadCount: 1})

	if p.ThreadCount != 8 {
		t.Errorf("per-worker override should win, got %d", p.ThreadCount)
	}
	if p.WorkerID != "charge-1" {
		t.Errorf("expected charge-1, got %q", p.WorkerID)
	}

	// Для другого типа действует global
	other := r.Resolve("refund", Props{ThreadCount: 1})
	if other.ThreadCount != 2 {
		t.Errorf("expected global value 2, got %d", other.ThreadCount)
	}
	if other.WorkerID != "shared" {
		t.Errorf("expected shared, got %q", other.WorkerID)
	}
}

func TestResolve_MillisecondInteger(t *testing.T) {
	r := New(mapLookup(map[string]string{
		"conductor.worker.charge.poll_interval": "1500",
	}))

	p := r.Resolve("charge", Props{})

	if p.PollInterval != 1500*time.Millisecond {
		t.Errorf("bare integer should be parsed as milliseconds, got %v", p.PollInterval)
	}
}

func TestResolve_InvalidValuesIgnored(t *testing.T) {
	r := New(mapLookup(map[string]string{
		"conductor.worker.charge.poll_interval":        "not-a-duration",
		"conductor.worker.charge.thread_count":         "-3",
		"conductor.worker.charge.lease_extend_enabled": "maybe",
	}))

	defaults := Props{PollInterval: time.Second, ThreadCount: 4, LeaseExtendEnabled: true}
	p := r.Resolve("charge", defaults)

	if p.PollInterval != time.Second {
		t.Errorf("invalid duration should keep default, got %v", p.PollInterval)
	}
	if p.ThreadCount != 4 {
		t.Errorf("non-positive thread count should keep default, got %d", p.ThreadCount)
	}
	if !p.LeaseExtendEnabled {
		t.Error("invalid bool should keep default")
	}
}

func TestPaused_Switch(t *testing.T) {
	env := map[string]string{}
	r := New(mapLookup(env))

	if r.Paused("charge") {
		t.Error("should not be paused by default")
	}

	// Pause через per-worker ключ
	env["conductor.worker.charge.paused"] = "true"
	if !r.Paused("charge") {
		t.Error("per-worker pause should apply")
	}
	if r.Paused("refund") {
		t.Error("pause of one type must not affect another")
	}

	// Pause через global ключ
	delete(env, "conductor.worker.charge.paused")
	env["conductor.worker.all.paused"] = "true"
	if !r.Paused("charge") || !r.Paused("refund") {
		t.Error("global pause should apply to all types")
	}
}
