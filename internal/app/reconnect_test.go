package app_test

import (
	"testing"
	"time"

	"github.com/shackpi/remotetrx/internal/app"
)

func TestExponentialBackoff_Doubles(t *testing.T) {
	t.Parallel()
	p := app.ExponentialBackoff{Initial: time.Second, Max: 30 * time.Second, MaxRetries: 10}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second,
	}
	for i, w := range want {
		got, ok := p.Next(i + 1)
		if !ok {
			t.Fatalf("Next(%d) gave up, want delay %v", i+1, w)
		}
		if got != w {
			t.Errorf("Next(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestExponentialBackoff_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	p := app.ExponentialBackoff{Initial: time.Millisecond, Max: time.Second, MaxRetries: 3}

	for attempt := 1; attempt <= 3; attempt++ {
		if _, ok := p.Next(attempt); !ok {
			t.Fatalf("Next(%d) gave up early", attempt)
		}
	}
	if _, ok := p.Next(4); ok {
		t.Error("Next(4) should give up after 3 retries")
	}
}

func TestExponentialBackoff_NegativeRetriesForever(t *testing.T) {
	t.Parallel()
	p := app.ExponentialBackoff{Initial: time.Millisecond, Max: time.Second, MaxRetries: -1}

	if _, ok := p.Next(1000); !ok {
		t.Error("Next(1000) should keep retrying with MaxRetries < 0")
	}
}

func TestExponentialBackoff_ZeroValueDefaults(t *testing.T) {
	t.Parallel()
	var p app.ExponentialBackoff

	got, ok := p.Next(1)
	if !ok {
		t.Fatal("Next(1) gave up on the zero-value policy")
	}
	if got != time.Second {
		t.Errorf("Next(1) = %v, want 1s default", got)
	}
	if _, ok := p.Next(11); ok {
		t.Error("Next(11) should give up after the default 10 retries")
	}
}

func TestExponentialBackoff_ClampsAttempt(t *testing.T) {
	t.Parallel()
	p := app.ExponentialBackoff{Initial: 2 * time.Second, Max: time.Minute, MaxRetries: 5}

	got, ok := p.Next(0)
	if !ok || got != 2*time.Second {
		t.Errorf("Next(0) = %v, %v; want 2s, true", got, ok)
	}
}

func TestFaultKind_String(t *testing.T) {
	t.Parallel()
	kinds := map[app.FaultKind]string{
		app.FaultConfig:    "config",
		app.FaultHardware:  "hardware",
		app.FaultPTT:       "ptt",
		app.FaultTransport: "transport",
	}
	for kind, name := range kinds {
		if kind.String() != name {
			t.Errorf("FaultKind(%d).String() = %q, want %q", kind, kind.String(), name)
		}
	}
}
