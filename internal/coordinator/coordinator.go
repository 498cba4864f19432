package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/drover-sh/drover/internal/audit"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/store"
	"github.com/drover-sh/drover/internal/workitem"
)

// Agent is the claim identity the coordinator runs under. Parents being
// expanded live in claimed/coordinator/ like any other claimed item.
const Agent = "coordinator"

// DefaultStaleAfter is how long a parent may pend before Stale flags it.
const DefaultStaleAfter = 24 * time.Hour

// Coordinator expands cross-channel parents into per-channel children and
// joins them back: the parent completes only when every child reached a
// terminal state.
type Coordinator struct {
	store    *store.Store
	tracking TrackingStore
	log      *audit.Log
	bus      *event.Bus
	logger   *logging.Logger

	staleAfter time.Duration
	now        func() time.Time
}

// New creates a Coordinator. The tracking store must already be open;
// the caller owns closing it.
func New(st *store.Store, tracking TrackingStore, log *audit.Log, bus *event.Bus, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{
		store:      st,
		tracking:   tracking,
		log:        log,
		bus:        bus,
		logger:     logger.WithAgent(Agent),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// SetStaleAfter overrides the stale-parent threshold.
func (c *Coordinator) SetStaleAfter(d time.Duration) {
	if d > 0 {
		c.staleAfter = d
	}
}

// RunOnce performs one coordinator cycle: expand any approved cross-post
// parents, then poll every tracked parent for completion.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	ids, err := c.store.List(store.StateApproved)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		it, err := c.store.Read(id, store.StateApproved)
		if err != nil {
			// A monitor or another coordinator may have moved it since
			// the listing. Pick it up next cycle if it comes back.
			if errors.IsRace(err) || errors.Is(err, errors.ErrItemNotFound) {
				continue
			}
			c.logger.Warn("unreadable approved item", "item", id, "error", err)
			continue
		}
		if it.Kind != workitem.KindCrossPost {
			continue
		}
		if err := c.Expand(id); err != nil {
			c.logger.Error("expand failed", "item", id, "error", err)
		}
	}

	if err := c.resume(ctx); err != nil {
		return err
	}
	return c.Poll(ctx)
}

// resume re-expands held parents that have no tracking record, which
// happens when a previous run crashed between the claim and the first
// tracking write.
func (c *Coordinator) resume(ctx context.Context) error {
	held, err := c.store.ListClaimed(Agent)
	if err != nil {
		return err
	}
	tracked := make(map[string]bool)
	for _, p := range c.tracking.Snapshot() {
		tracked[p.ID] = true
	}
	for _, id := range held {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tracked[id] {
			continue
		}
		c.logger.Warn("resuming untracked parent", "item", id)
		if err := c.Expand(id); err != nil {
			c.logger.Error("resume failed", "item", id, "error", err)
		}
	}
	return nil
}

// Expand claims one cross-post parent out of approved and fans it out
// into per-channel children, all written back to approved. Losing the
// claim race is not an error: another coordinator cycle owns the parent.
// A parent whose sub-action block cannot be parsed goes to errors; there
// is nothing to fan out and nothing to retry.
func (c *Coordinator) Expand(parentID string) error {
	if err := c.store.MoveToClaim(parentID, store.StateApproved, Agent); err != nil {
		if !errors.IsRace(err) && !errors.Is(err, errors.ErrItemExists) {
			return err
		}
		// The parent may already sit in this coordinator's claim
		// subtree from a run that crashed mid-expansion. Resume those;
		// anything else is someone else's item.
		owner, ok, cerr := c.store.ClaimedBy(parentID)
		if cerr != nil {
			return cerr
		}
		if !ok || owner != Agent {
			return nil
		}
	}

	parent, err := c.store.ReadClaimed(parentID, Agent)
	if err != nil {
		return err
	}

	actions, err := workitem.SubActions(parent)
	if err != nil {
		c.logger.Warn("unparseable cross-post parent", "item", parentID, "error", err)
		if merr := c.store.MoveFromClaim(parentID, Agent, store.StateError); merr != nil {
			return merr
		}
		_ = c.log.Append(audit.Entry{
			ItemID: parentID,
			Action: audit.ActionError,
			From:   string(store.StateClaimed),
			To:     string(store.StateError),
			Detail: err.Error(),
		})
		return nil
	}

	childIDs := make([]string, 0, len(actions))
	for _, action := range actions {
		childID := workitem.ChildID(action.Channel, parentID)
		child := &workitem.Item{
			ID:      childID,
			Kind:    workitem.KindSocialPost,
			Service: action.Channel,
			Fields: []workitem.Field{
				{Key: workitem.KeyType, Value: string(workitem.KindSocialPost)},
				{Key: workitem.KeyService, Value: action.Channel},
				{Key: workitem.KeyParent, Value: parentID},
			},
			Body: action.Payload,
		}
		if err := c.store.Write(child, store.StateApproved); err != nil {
			// Re-expansion after a crash finds some children already
			// written. Their current status is picked up by Poll.
			if !errors.Is(err, errors.ErrItemExists) {
				return err
			}
		}
		if err := c.tracking.Put(parentID, childID, ChildPending); err != nil {
			return err
		}
		_ = c.log.Append(audit.Entry{
			ItemID: childID,
			Action: audit.ActionChildAdded,
			To:     string(store.StateApproved),
			Detail: "parent " + parentID,
		})
		childIDs = append(childIDs, childID)
	}

	_ = c.log.Append(audit.Entry{
		ItemID: parentID,
		Action: audit.ActionExpanded,
		From:   string(store.StateApproved),
		To:     string(store.StateClaimed),
		Detail: fmt.Sprintf("%d children", len(childIDs)),
	})
	if c.bus != nil {
		c.bus.Publish(event.NewParentExpandedEvent(parentID, childIDs))
	}
	c.logger.Info("parent expanded", "item", parentID, "children", len(childIDs))
	return nil
}

// Poll refreshes every tracked child's status from the store and
// completes parents whose children have all reached done or rejected.
// A failed child leaves its parent pending until an operator
// intervenes; a child in none of the terminal states is still moving
// through the pipeline.
func (c *Coordinator) Poll(ctx context.Context) error {
	for _, parent := range c.tracking.Snapshot() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for childID, status := range parent.Children {
			if status != ChildPending {
				continue
			}
			switch {
			case c.store.Exists(childID, store.StateDone):
				if err := c.tracking.Put(parent.ID, childID, ChildDone); err != nil {
					return err
				}
				parent.Children[childID] = ChildDone
			case c.store.Exists(childID, store.StateRejected):
				if err := c.tracking.Put(parent.ID, childID, ChildRejected); err != nil {
					return err
				}
				parent.Children[childID] = ChildRejected
				c.logger.Info("child rejected", "item", childID, "parent", parent.ID)
			case c.store.Exists(childID, store.StateError):
				if err := c.tracking.Put(parent.ID, childID, ChildFailed); err != nil {
					return err
				}
				parent.Children[childID] = ChildFailed
				c.logger.Warn("child failed", "item", childID, "parent", parent.ID)
			}
		}

		if parent.Complete() {
			if err := c.complete(parent); err != nil {
				c.logger.Error("completion failed", "item", parent.ID, "error", err)
			}
		}
	}
	return nil
}

// complete writes the join summary into the parent, archives it, and
// drops the tracking record.
func (c *Coordinator) complete(parent *Parent) error {
	it, err := c.store.ReadClaimed(parent.ID, Agent)
	if err != nil {
		// A crash between the archive move and the tracking drop leaves
		// the parent already in done; only the drop remains.
		if errors.Is(err, errors.ErrItemNotFound) && c.store.Exists(parent.ID, store.StateDone) {
			return c.tracking.Forget(parent.ID)
		}
		return err
	}

	var published, rejected []string
	for childID, status := range parent.Children {
		if status == ChildRejected {
			rejected = append(rejected, workitem.Channel(childID))
			continue
		}
		published = append(published, workitem.Channel(childID))
	}
	sort.Strings(published)
	sort.Strings(rejected)
	summary := fmt.Sprintf("published to %d channels: %s",
		len(published), strings.Join(published, ", "))
	if len(rejected) > 0 {
		summary += "; rejected: " + strings.Join(rejected, ", ")
	}
	it.Set(workitem.KeyResult, summary)
	it.Set(workitem.KeyStatus, string(store.StateDone))
	if err := c.store.Rewrite(it, store.StateClaimed, Agent); err != nil {
		return err
	}

	if err := c.store.MoveFromClaim(parent.ID, Agent, store.StateDone); err != nil {
		return err
	}
	_ = c.log.Append(audit.Entry{
		ItemID: parent.ID,
		Action: audit.ActionCompleted,
		From:   string(store.StateClaimed),
		To:     string(store.StateDone),
		Detail: fmt.Sprintf("%d children terminal", len(parent.Children)),
	})
	if c.bus != nil {
		c.bus.Publish(event.NewParentCompletedEvent(parent.ID, len(parent.Children)))
	}
	c.logger.Info("parent completed", "item", parent.ID, "children", len(parent.Children))

	return c.tracking.Forget(parent.ID)
}

// Stale returns tracked parents that have been pending longer than the
// configured threshold, oldest first. The report is advisory: the
// coordinator keeps polling them regardless.
func (c *Coordinator) Stale() []*Parent {
	cutoff := c.now().Add(-c.staleAfter)
	var out []*Parent
	for _, p := range c.tracking.Snapshot() {
		if p.Complete() {
			continue
		}
		if !p.ExpandedAt.IsZero() && p.ExpandedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// Rebuild reconstructs tracking state from the store alone. Every child
// identity embeds its parent's identity, so scanning the states where
// children can live recovers the full parent -> child map after the
// tracking log is lost or corrupted.
func (c *Coordinator) Rebuild() error {
	held, err := c.store.ListClaimed(Agent)
	if err != nil {
		return err
	}
	// The coordinator's claim subtree only ever holds expanded parents.
	parents := make(map[string]bool, len(held))
	for _, id := range held {
		parents[id] = true
	}

	states := []store.State{
		store.StateApproved, store.StateDone, store.StateRejected, store.StateError,
	}
	for _, state := range states {
		ids, err := c.store.List(state)
		if err != nil {
			return err
		}
		for _, id := range ids {
			parentID, ok := workitem.ParentRef(id)
			if !ok || !parents[parentID] {
				continue
			}
			status := ChildPending
			switch state {
			case store.StateDone:
				status = ChildDone
			case store.StateRejected:
				status = ChildRejected
			case store.StateError:
				status = ChildFailed
			}
			if err := c.tracking.Put(parentID, id, status); err != nil {
				return err
			}
		}
	}

	c.logger.Info("tracking rebuilt", "parents", len(parents))
	return nil
}

// Run polls on a fixed interval until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("coordinator cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
