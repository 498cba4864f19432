// Package retry provides the shared backoff policy and per-item failure
// tracking used at every external-call site. A Policy computes bounded,
// jittered delays; a Tracker counts consecutive failures per item and
// reports when an item must be escalated instead of retried again.
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Policy describes bounded retries with exponential backoff and jitter.
type Policy struct {
	// MaxAttempts is the bounded number of consecutive failures allowed
	// before escalation. Zero or negative means one attempt, no retries.
	MaxAttempts int

	// BaseDelay is the backoff for the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// Jitter is the fraction (0..1) of random spread applied to a delay.
	Jitter float64
}

// DefaultPolicy matches the pipeline's defaults: three attempts, one
// second base, capped at a minute, 20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Jitter:      0.2,
	}
}

// Delay returns the backoff before the given retry attempt (1-based).
// Growth is exponential from BaseDelay, capped at MaxDelay, with up to
// Jitter fraction of random spread added.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration(rand.Float64() * spread)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}

// Exhausted reports whether the given consecutive-failure count has
// reached the bounded maximum.
func (p Policy) Exhausted(failures int) bool {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	return failures >= max
}

// ItemState tracks consecutive failures for one item.
type ItemState struct {
	ItemID   string `json:"item_id"`
	Failures int    `json:"failures"`
	LastErr  string `json:"last_error,omitempty"`
}

// Tracker counts consecutive failures per item against a Policy.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	policy Policy
	states map[string]*ItemState
}

// NewTracker creates a Tracker for the given policy.
func NewTracker(policy Policy) *Tracker {
	return &Tracker{
		policy: policy,
		states: make(map[string]*ItemState),
	}
}

// RecordFailure increments the consecutive-failure count for an item and
// reports whether the item has exhausted its attempts and must be
// escalated rather than retried.
func (t *Tracker) RecordFailure(itemID string, err error) (failures int, escalate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[itemID]
	if !ok {
		state = &ItemState{ItemID: itemID}
		t.states[itemID] = state
	}
	state.Failures++
	if err != nil {
		state.LastErr = err.Error()
	}
	return state.Failures, t.policy.Exhausted(state.Failures)
}

// RecordSuccess clears an item's failure run.
func (t *Tracker) RecordSuccess(itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, itemID)
}

// Failures returns the current consecutive-failure count for an item.
func (t *Tracker) Failures(itemID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[itemID]; ok {
		return state.Failures
	}
	return 0
}

// LastError returns the most recent failure message for an item.
func (t *Tracker) LastError(itemID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[itemID]; ok {
		return state.LastErr
	}
	return ""
}

// Reset clears all tracked state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]*ItemState)
}
