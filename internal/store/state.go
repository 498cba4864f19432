package store

// State identifies one directory of the item store.
type State string

const (
	// StateIntake holds items waiting to be claimed.
	StateIntake State = "intake"

	// StateClaimed holds items owned by an agent. Claimed items live in
	// an agent-specific subdirectory; use Store.ClaimDir.
	StateClaimed State = "claimed"

	// StateReview holds items parked for out-of-band human review.
	StateReview State = "review"

	// StateApproved holds items cleared for publishing.
	StateApproved State = "approved"

	// StateRejected is terminal: items a decision or a human refused.
	StateRejected State = "rejected"

	// StateDone is terminal: the archive of completed items.
	StateDone State = "done"

	// StateError is explicit parking for items that exhausted their
	// publish retries. Terminal for coordination purposes, but operators
	// may move items out by hand.
	StateError State = "errors"
)

// String returns the directory name for the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends an item's lifecycle.
// Items in errors are parked, not finished; a parent whose child sits
// there must stay pending.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateRejected
}

// States lists every state directory, claimed included.
func States() []State {
	return []State{
		StateIntake, StateClaimed, StateReview,
		StateApproved, StateRejected, StateDone, StateError,
	}
}
