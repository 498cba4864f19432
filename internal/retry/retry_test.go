package retry

import (
	"errors"
	"testing"
	"time"
)

func TestDelayGrowsAndCaps(t *testing.T) {
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      0, // deterministic for this test
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{9, 10 * time.Second},
		{0, time.Second}, // clamped to first attempt
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitterBounded(t *testing.T) {
	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Jitter:      0.5,
	}

	for i := 0; i < 100; i++ {
		d := p.Delay(2)
		if d < 2*time.Second || d > 3*time.Second {
			t.Fatalf("jittered delay %v outside [2s, 3s]", d)
		}
	}
}

func TestExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3}

	if p.Exhausted(2) {
		t.Error("2 failures should not exhaust 3 attempts")
	}
	if !p.Exhausted(3) {
		t.Error("3 failures should exhaust 3 attempts")
	}

	// Degenerate policy still allows one attempt.
	z := Policy{}
	if z.Exhausted(0) {
		t.Error("0 failures never exhausts")
	}
	if !z.Exhausted(1) {
		t.Error("zero-valued policy should exhaust after 1 failure")
	}
}

func TestTrackerEscalatesAtBound(t *testing.T) {
	tr := NewTracker(Policy{MaxAttempts: 3})
	id := "twitter--xpost-20260829T101500-launch"

	for i := 1; i <= 2; i++ {
		failures, escalate := tr.RecordFailure(id, errors.New("timeout"))
		if failures != i || escalate {
			t.Fatalf("failure %d: failures=%d escalate=%v", i, failures, escalate)
		}
	}

	failures, escalate := tr.RecordFailure(id, errors.New("timeout"))
	if failures != 3 || !escalate {
		t.Fatalf("third failure: failures=%d escalate=%v, want escalation", failures, escalate)
	}
	if tr.LastError(id) != "timeout" {
		t.Errorf("LastError = %q", tr.LastError(id))
	}
}

func TestTrackerSuccessClearsRun(t *testing.T) {
	tr := NewTracker(Policy{MaxAttempts: 2})
	id := "email-20260829T101500-hello"

	tr.RecordFailure(id, errors.New("flaky"))
	tr.RecordSuccess(id)

	if tr.Failures(id) != 0 {
		t.Errorf("failures after success = %d, want 0", tr.Failures(id))
	}

	// The bound applies to consecutive failures only.
	if _, escalate := tr.RecordFailure(id, errors.New("flaky")); escalate {
		t.Error("escalated on first failure after a success")
	}
}

func TestTrackerIndependentItems(t *testing.T) {
	tr := NewTracker(Policy{MaxAttempts: 2})

	tr.RecordFailure("item-a", errors.New("x"))
	if tr.Failures("item-b") != 0 {
		t.Error("failure leaked across items")
	}
}
