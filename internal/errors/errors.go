// Package errors provides centralized error definitions and classification
// helpers for the drover pipeline. It defines sentinel errors for the
// store, gate, decision, and coordination subsystems, plus helpers that
// distinguish expected races and transient failures from fatal corruption.
//
// Callers import only this package for error handling; the standard
// library's Is/As/Unwrap/New/Join are re-exported for convenience.
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Store and claim sentinel errors
var (
	// ErrItemNotFound indicates a work item does not exist in the expected state.
	ErrItemNotFound = New("work item not found")
	// ErrItemExists indicates an identity already exists at the destination.
	ErrItemExists = New("work item already exists")
	// ErrRaceLost indicates another agent moved the item first. This is an
	// expected outcome of claim races, not a failure; callers should look
	// for the next available item.
	ErrRaceLost = New("claim race lost")
	// ErrAlreadyClaimed indicates the identity is held in another agent's
	// claim subtree.
	ErrAlreadyClaimed = New("item claimed by another agent")
)

// Gate and decision sentinel errors
var (
	// ErrInvalidTransition indicates a state transition outside the legal table.
	ErrInvalidTransition = New("invalid state transition")
	// ErrClassifierUnavailable indicates the external classifier could not
	// be reached. Recovered locally via the rule table, never surfaced.
	ErrClassifierUnavailable = New("classifier unavailable")
	// ErrMalformedResponse indicates the classifier returned something
	// outside the decision vocabulary. Recovered by failing closed to manual.
	ErrMalformedResponse = New("malformed classifier response")
)

// Coordination and publishing sentinel errors
var (
	// ErrPublishFailed indicates a publisher call failed; the item stays in
	// approved for the next poll cycle.
	ErrPublishFailed = New("publish failed")
	// ErrEscalated indicates an item exhausted its bounded retries and was
	// parked in the errors directory.
	ErrEscalated = New("item escalated after repeated failures")
	// ErrCorruptTracking indicates the coordinator tracking store cannot be
	// parsed. Fatal to the coordinator process; recovery is a rebuild scan.
	ErrCorruptTracking = New("tracking state corrupted")
	// ErrBadItem indicates a work item file failed schema validation.
	ErrBadItem = New("malformed work item")
)

// IsRace reports whether err is an expected claim-race outcome.
// Race losses are resolved by moving on to the next item.
func IsRace(err error) bool {
	return errors.Is(err, ErrRaceLost) || errors.Is(err, ErrAlreadyClaimed)
}

// IsTransient reports whether err should be retried on a later cycle
// rather than escalated immediately.
func IsTransient(err error) bool {
	return errors.Is(err, ErrPublishFailed) || errors.Is(err, ErrClassifierUnavailable)
}

// IsFatal reports whether err is unrecoverable for the component that
// observed it. Only unreconstructable state corruption qualifies.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCorruptTracking)
}

// Wrap annotates err with a message, preserving the sentinel chain.
// Returns nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf annotates err with a formatted message, preserving the chain.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
