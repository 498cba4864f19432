// Package gate implements the approval gate: the state machine applying
// a decision to a claimed work item. The gate owns all post-decision
// file moves; the decision engine itself never touches the store.
//
// Transitions out of Claimed, keyed by decision:
//
//	approve -> approved
//	reject  -> rejected   (terminal)
//	manual  -> review
//	draft   -> review     (generated payload embedded for the reviewer)
//
// Humans resolve review items out of band by moving them to approved or
// rejected; monitors trigger on presence in approved, not on who moved
// an item there.
package gate

import (
	"context"
	"fmt"

	"github.com/drover-sh/drover/internal/audit"
	"github.com/drover-sh/drover/internal/claim"
	"github.com/drover-sh/drover/internal/decision"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/store"
	"github.com/drover-sh/drover/internal/workitem"
)

// Destination maps a decision outcome to the state it routes to.
func Destination(o decision.Outcome) (store.State, error) {
	switch o {
	case decision.Approve:
		return store.StateApproved, nil
	case decision.Reject:
		return store.StateRejected, nil
	case decision.Manual, decision.Draft:
		return store.StateReview, nil
	}
	return "", fmt.Errorf("%w: no destination for decision %q", errors.ErrInvalidTransition, o)
}

// ReviewDestination validates a human resolution of a review item.
// Review items may only move to approved or rejected.
func ReviewDestination(to store.State) error {
	if to != store.StateApproved && to != store.StateRejected {
		return fmt.Errorf("%w: review items resolve to approved or rejected, not %s",
			errors.ErrInvalidTransition, to)
	}
	return nil
}

// Gate applies decisions to items claimed by one agent.
type Gate struct {
	claims *claim.Manager
	store  *store.Store
	engine *decision.Engine
	log    *audit.Log
	bus    *event.Bus
	logger *logging.Logger
}

// New creates a Gate for the agent behind the given claim manager.
func New(claims *claim.Manager, st *store.Store, engine *decision.Engine, log *audit.Log, bus *event.Bus, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Gate{
		claims: claims,
		store:  st,
		engine: engine,
		log:    log,
		bus:    bus,
		logger: logger.WithAgent(claims.Agent()),
	}
}

// Process decides one item the agent holds a claim on and routes it.
// The decision and its reasoning are recorded into the item before the
// move, so the destination file is self-describing. Errors while
// recording or routing return the item to intake for a later
// re-decision; a decision is only considered recorded once the routing
// move succeeded.
func (g *Gate) Process(ctx context.Context, id string) error {
	agent := g.claims.Agent()

	it, err := g.store.ReadClaimed(id, agent)
	if err != nil {
		return errors.Wrapf(err, "read claimed item %s", id)
	}

	d := g.engine.Decide(ctx, it)
	dest, err := Destination(d.Outcome)
	if err != nil {
		return err
	}

	it.Set(workitem.KeyDecision, string(d.Outcome))
	it.Set(workitem.KeyReasoning, d.Reasoning)
	it.Set(workitem.KeyAgent, agent)
	it.Set(workitem.KeyStatus, dest.String())
	if d.Outcome == decision.Draft {
		it.Set(workitem.KeyDraft, d.Payload)
	}

	if err := g.store.Rewrite(it, store.StateClaimed, agent); err != nil {
		g.returnToIntake(id, "record decision: "+err.Error())
		return errors.Wrapf(err, "record decision on %s", id)
	}

	if err := g.log.Append(audit.Entry{
		ItemID: id,
		Action: audit.ActionDecided,
		Detail: fmt.Sprintf("%s via %s: %s", d.Outcome, d.Source, d.Reasoning),
	}); err != nil {
		g.logger.Warn("audit append failed", "item", id, "error", err)
	}
	g.bus.Publish(event.NewItemDecidedEvent(id, agent, string(d.Outcome), d.Source, d.Reasoning))

	if err := g.claims.Release(id, dest); err != nil {
		g.returnToIntake(id, "route: "+err.Error())
		return errors.Wrapf(err, "route %s to %s", id, dest)
	}

	g.logger.Info("processed item",
		"item", id, "decision", string(d.Outcome), "source", d.Source, "dest", dest.String())
	return nil
}

// returnToIntake puts a claimed item back for a later re-decision after
// an error. Best effort: if even this move fails the item stays claimed
// and the audit trail records the error for operators.
func (g *Gate) returnToIntake(id, reason string) {
	if err := g.store.MoveFromClaim(id, g.claims.Agent(), store.StateIntake); err != nil {
		g.logger.Error("failed to return item to intake", "item", id, "error", err)
	}
	if err := g.log.Append(audit.Entry{
		ItemID: id,
		Action: audit.ActionReturned,
		From:   "claimed/" + g.claims.Agent(),
		To:     store.StateIntake.String(),
		Detail: reason,
	}); err != nil {
		g.logger.Warn("audit append failed", "item", id, "error", err)
	}
}
