// Package coordinator implements cross-channel fan-out and fan-in. An
// approved cross_post parent is expanded into one ordinary child work
// item per target channel, written straight into the approved state; the
// parent waits in the coordinator's claim subtree until every child has
// reached a terminal state, then moves to done with a completion summary.
//
// Tracking state is an append-then-compact JSONL log behind the
// TrackingStore interface, guarded by an exclusive flock so the single
// coordinator-per-deployment assumption is enforced at open time rather
// than discovered as corruption. A corrupt tracking file is fatal to the
// coordinator only; Rebuild reconstructs it by scanning item states for
// child identities, which embed their parent reference by naming
// convention.
//
// A child parked in the errors state keeps its parent pending
// indefinitely. Such parents are never silently dropped: they surface in
// the stale-parent report once their age passes a threshold.
package coordinator
