package event

import "time"

// Event is the interface all pipeline events implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "item.claimed", "parent.completed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// ItemClaimedEvent is emitted when an agent wins a claim on an intake item.
type ItemClaimedEvent struct {
	baseEvent
	ItemID string
	Agent  string
}

// NewItemClaimedEvent creates an ItemClaimedEvent.
func NewItemClaimedEvent(itemID, agent string) ItemClaimedEvent {
	return ItemClaimedEvent{
		baseEvent: newBaseEvent("item.claimed"),
		ItemID:    itemID,
		Agent:     agent,
	}
}

// ItemDecidedEvent is emitted when the decision engine disposes of an item.
type ItemDecidedEvent struct {
	baseEvent
	ItemID    string
	Agent     string
	Decision  string
	Source    string // "classifier", "rules", or "fallback"
	Reasoning string
}

// NewItemDecidedEvent creates an ItemDecidedEvent.
func NewItemDecidedEvent(itemID, agent, decision, source, reasoning string) ItemDecidedEvent {
	return ItemDecidedEvent{
		baseEvent: newBaseEvent("item.decided"),
		ItemID:    itemID,
		Agent:     agent,
		Decision:  decision,
		Source:    source,
		Reasoning: reasoning,
	}
}

// ItemRoutedEvent is emitted when the gate moves an item to its post-decision state.
type ItemRoutedEvent struct {
	baseEvent
	ItemID string
	Agent  string
	State  string
}

// NewItemRoutedEvent creates an ItemRoutedEvent.
func NewItemRoutedEvent(itemID, agent, state string) ItemRoutedEvent {
	return ItemRoutedEvent{
		baseEvent: newBaseEvent("item.routed"),
		ItemID:    itemID,
		Agent:     agent,
		State:     state,
	}
}

// ItemPublishedEvent is emitted when a monitor successfully publishes an item.
type ItemPublishedEvent struct {
	baseEvent
	ItemID     string
	Channel    string
	ExternalID string
}

// NewItemPublishedEvent creates an ItemPublishedEvent.
func NewItemPublishedEvent(itemID, channel, externalID string) ItemPublishedEvent {
	return ItemPublishedEvent{
		baseEvent:  newBaseEvent("item.published"),
		ItemID:     itemID,
		Channel:    channel,
		ExternalID: externalID,
	}
}

// MonitorEscalatedEvent is emitted when an item exhausts its publish retries
// and is parked in the errors directory.
type MonitorEscalatedEvent struct {
	baseEvent
	ItemID   string
	Channel  string
	Failures int
	LastErr  string
}

// NewMonitorEscalatedEvent creates a MonitorEscalatedEvent.
func NewMonitorEscalatedEvent(itemID, channel string, failures int, lastErr string) MonitorEscalatedEvent {
	return MonitorEscalatedEvent{
		baseEvent: newBaseEvent("monitor.escalated"),
		ItemID:    itemID,
		Channel:   channel,
		Failures:  failures,
		LastErr:   lastErr,
	}
}

// ParentExpandedEvent is emitted when the coordinator fans a parent out
// into channel-specific children.
type ParentExpandedEvent struct {
	baseEvent
	ParentID string
	ChildIDs []string
}

// NewParentExpandedEvent creates a ParentExpandedEvent.
func NewParentExpandedEvent(parentID string, childIDs []string) ParentExpandedEvent {
	return ParentExpandedEvent{
		baseEvent: newBaseEvent("parent.expanded"),
		ParentID:  parentID,
		ChildIDs:  childIDs,
	}
}

// ParentCompletedEvent is emitted when every child of a parent reached a
// terminal state and the parent was finalized.
type ParentCompletedEvent struct {
	baseEvent
	ParentID string
	Children int
}

// NewParentCompletedEvent creates a ParentCompletedEvent.
func NewParentCompletedEvent(parentID string, children int) ParentCompletedEvent {
	return ParentCompletedEvent{
		baseEvent: newBaseEvent("parent.completed"),
		ParentID:  parentID,
		Children:  children,
	}
}
