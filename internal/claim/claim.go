// Package claim implements the claim-by-move primitive: exclusive
// ownership of a work item is established by atomically renaming it into
// the claiming agent's own subtree. At most one agent system-wide ever
// observes a successful claim for a given identity; losing a race is an
// expected outcome resolved by looking for the next available item.
package claim

import (
	"github.com/drover-sh/drover/internal/audit"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/store"
)

// Manager claims and releases items on behalf of one agent.
type Manager struct {
	agent  string
	store  *store.Store
	log    *audit.Log
	bus    *event.Bus
	logger *logging.Logger
}

// NewManager creates a Manager for the named agent.
func NewManager(agent string, st *store.Store, log *audit.Log, bus *event.Bus, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		agent:  agent,
		store:  st,
		log:    log,
		bus:    bus,
		logger: logger.WithAgent(agent),
	}
}

// Agent returns the agent this manager claims for.
func (m *Manager) Agent() string {
	return m.agent
}

// Claim attempts to take exclusive ownership of an intake item.
//
// If another agent's claim subtree already holds the identity, Claim
// returns false with no side effect. Otherwise it renames the item into
// this agent's subtree; the rename failing because the source vanished
// means another agent won the race, which is also a clean false. Only a
// successful claim has side effects: an audit entry and a claim event.
func (m *Manager) Claim(id string) (bool, error) {
	owner, held, err := m.store.ClaimedBy(id)
	if err != nil {
		return false, errors.Wrap(err, "check existing claims")
	}
	if held {
		if owner == m.agent {
			return false, errors.Wrapf(errors.ErrAlreadyClaimed, "%s already holds %s", m.agent, id)
		}
		m.logger.Debug("item already claimed", "item", id, "owner", owner)
		return false, nil
	}

	if err := m.store.MoveToClaim(id, store.StateIntake, m.agent); err != nil {
		if errors.IsRace(err) {
			m.logger.Debug("lost claim race", "item", id)
			return false, nil
		}
		return false, errors.Wrapf(err, "claim %s", id)
	}

	if err := m.log.Transition(id, audit.ActionClaimed, store.StateIntake.String(), "claimed/"+m.agent); err != nil {
		m.logger.Warn("audit append failed", "item", id, "error", err)
	}
	m.bus.Publish(event.NewItemClaimedEvent(id, m.agent))
	m.logger.Info("claimed item", "item", id)
	return true, nil
}

// Release atomically moves a claimed item to one of the legal
// destinations and appends an audit entry.
func (m *Manager) Release(id string, dest store.State) error {
	if err := m.store.MoveFromClaim(id, m.agent, dest); err != nil {
		return errors.Wrapf(err, "release %s to %s", id, dest)
	}

	if err := m.log.Transition(id, audit.ActionReleased, "claimed/"+m.agent, dest.String()); err != nil {
		m.logger.Warn("audit append failed", "item", id, "error", err)
	}
	m.bus.Publish(event.NewItemRoutedEvent(id, m.agent, dest.String()))
	m.logger.Info("released item", "item", id, "dest", dest.String())
	return nil
}

// Next returns the oldest unclaimed intake identity, or ok=false when
// the intake holds nothing new. Identities sort by channel then
// timestamp, so "oldest" is per-channel FIFO. Identities in skip are
// passed over; callers use it so an item returned to intake after a
// processing error waits for the next cycle instead of being reclaimed
// in a tight loop.
func (m *Manager) Next(skip map[string]bool) (string, bool, error) {
	ids, err := m.store.List(store.StateIntake)
	if err != nil {
		return "", false, errors.Wrap(err, "list intake")
	}
	for _, id := range ids {
		if !skip[id] {
			return id, true, nil
		}
	}
	return "", false, nil
}

// Held lists the identities currently in this agent's claim subtree.
func (m *Manager) Held() ([]string, error) {
	return m.store.ListClaimed(m.agent)
}
