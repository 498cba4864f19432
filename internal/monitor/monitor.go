package monitor

import (
	"context"
	"time"

	"github.com/drover-sh/drover/internal/audit"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/retry"
	"github.com/drover-sh/drover/internal/store"
	"github.com/drover-sh/drover/internal/workitem"
)

// Monitor publishes approved items for one channel.
type Monitor struct {
	channel string
	store   *store.Store
	pub     Publisher
	log     *audit.Log
	tracker *retry.Tracker
	bus     *event.Bus
	logger  *logging.Logger

	// processed remembers identities this monitor already published, so
	// re-listing an item mid-move never publishes twice.
	processed map[string]bool

	now func() time.Time
}

// New creates a Monitor for one channel. A nil retry policy uses
// retry.DefaultPolicy.
func New(channel string, st *store.Store, pub Publisher, log *audit.Log, policy *retry.Policy, bus *event.Bus, logger *logging.Logger) *Monitor {
	p := retry.DefaultPolicy()
	if policy != nil {
		p = *policy
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Monitor{
		channel:   channel,
		store:     st,
		pub:       pub,
		log:       log,
		tracker:   retry.NewTracker(p),
		bus:       bus,
		logger:    logger.WithChannel(channel),
		processed: make(map[string]bool),
		now:       time.Now,
	}
}

// Channel returns the channel this monitor serves.
func (m *Monitor) Channel() string {
	return m.channel
}

// RunOnce performs one poll cycle: list approved items for this channel
// and publish each new one. The current item always finishes before a
// cancellation is honored.
func (m *Monitor) RunOnce(ctx context.Context) error {
	ids, err := m.store.List(store.StateApproved)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.processed[id] {
			continue
		}
		if workitem.Channel(id) != m.channel {
			continue
		}
		if err := m.publish(ctx, id); err != nil {
			m.logger.Error("publish cycle error", "item", id, "error", err)
		}
	}
	return nil
}

// publish handles one approved item end to end.
func (m *Monitor) publish(ctx context.Context, id string) error {
	it, err := m.store.Read(id, store.StateApproved)
	if err != nil {
		// Moved since listing, or unreadable. Both resolve next cycle.
		if errors.Is(err, errors.ErrItemNotFound) {
			return nil
		}
		return err
	}

	// Cross-channel parents are the coordinator's to expand, never
	// published directly.
	if it.Kind == workitem.KindCrossPost {
		return nil
	}

	payload := it.Body
	if draft := it.Draft(); draft != "" {
		payload = draft
	}

	meta := make(map[string]string, len(it.Fields))
	for _, f := range it.Fields {
		meta[f.Key] = f.Value
	}

	res, err := m.pub.Publish(ctx, Post{
		Channel: m.channel,
		ItemID:  id,
		Payload: payload,
		Meta:    meta,
	})
	if err != nil {
		return m.fail(id, err)
	}
	return m.finish(id, it, res)
}

// finish records the publish outcome and archives the item.
func (m *Monitor) finish(id string, it *workitem.Item, res Result) error {
	summary := "published to " + m.channel + " at " + m.now().UTC().Format(time.RFC3339)
	if res.ExternalID != "" {
		summary += " as " + res.ExternalID
	}
	it.Set(workitem.KeyResult, summary)
	it.Set(workitem.KeyStatus, string(store.StateDone))
	if err := m.store.Rewrite(it, store.StateApproved, ""); err != nil {
		return err
	}

	if err := m.store.Move(id, store.StateApproved, store.StateDone); err != nil {
		return err
	}
	m.processed[id] = true
	m.tracker.RecordSuccess(id)

	_ = m.log.Append(audit.Entry{
		ItemID: id,
		Action: audit.ActionPublished,
		From:   string(store.StateApproved),
		To:     string(store.StateDone),
		Detail: summary,
	})
	if m.bus != nil {
		m.bus.Publish(event.NewItemPublishedEvent(id, m.channel, res.ExternalID))
	}
	m.logger.Info("published", "item", id, "external_id", res.ExternalID)
	return nil
}

// fail counts one publish failure. The item stays in approved for the
// next cycle until the consecutive-failure bound is hit, then it is
// parked in errors with an escalation record.
func (m *Monitor) fail(id string, perr error) error {
	failures, escalate := m.tracker.RecordFailure(id, perr)
	m.logger.Warn("publish failed", "item", id, "failures", failures, "error", perr)

	if !escalate {
		return nil
	}

	if err := m.store.Move(id, store.StateApproved, store.StateError); err != nil {
		return err
	}
	// Not marked processed: an operator moving the item back from
	// errors to approved is picked up on the next poll with a fresh
	// attempt budget.
	m.tracker.RecordSuccess(id)

	_ = m.log.Append(audit.Entry{
		ItemID: id,
		Action: audit.ActionEscalated,
		From:   string(store.StateApproved),
		To:     string(store.StateError),
		Detail: perr.Error(),
	})
	if m.bus != nil {
		m.bus.Publish(event.NewMonitorEscalatedEvent(id, m.channel, failures, perr.Error()))
	}
	m.logger.Error("escalated after repeated failures", "item", id, "failures", failures)
	return nil
}

// Run polls on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("monitor cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
