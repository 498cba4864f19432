package workitem

import (
	"fmt"

	"github.com/drover-sh/drover/internal/errors"
)

// Kind is the typed variant tag of a work item, keyed by the "type"
// header field and validated once at the boundary.
type Kind string

const (
	// KindMessage is an inbound message requiring a reply decision.
	KindMessage Kind = "message"

	// KindRequest is an inbound request for some action.
	KindRequest Kind = "request"

	// KindSocialPost is a single-channel social media post.
	KindSocialPost Kind = "social_post"

	// KindCrossPost is a composite action that fans out into one child
	// per target channel at approval time.
	KindCrossPost Kind = "cross_post"
)

// ParseKind validates a "type" header value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMessage, KindRequest, KindSocialPost, KindCrossPost:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: unknown type %q", errors.ErrBadItem, s)
}

// Priority orders items for human attention. It never changes routing on
// its own; policy rules may key on it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority validates a "priority" header value. An empty value
// defaults to normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return Priority(s), nil
	case "":
		return PriorityNormal, nil
	}
	return "", fmt.Errorf("%w: unknown priority %q", errors.ErrBadItem, s)
}

// Well-known header keys. Ingest writes the first four; the pipeline
// writes the rest as the item moves.
const (
	KeyType      = "type"
	KeyService   = "service"
	KeyPriority  = "priority"
	KeyStatus    = "status"
	KeyDecision  = "decision"
	KeyReasoning = "reasoning"
	KeyAgent     = "agent"
	KeyDraft     = "draft"
	KeyResult    = "result"
	KeyParent    = "parent"
)

// Field is one header key-value pair. Order is preserved across
// decode/encode so unknown fields survive every move untouched.
type Field struct {
	Key   string
	Value string
}

// Item is a decoded work item. Current state is not stored here: it is
// implied entirely by the directory holding the item's file.
type Item struct {
	// ID is the filename stem; stable for the item's whole life.
	ID string

	// Kind is the validated "type" header field.
	Kind Kind

	// Service is the "service" header field: the channel this item
	// belongs to (email, twitter, linkedin, ...).
	Service string

	// Priority is the validated "priority" header field.
	Priority Priority

	// Fields holds every header field in file order, including the four
	// typed ones above and any keys this pipeline does not know about.
	Fields []Field

	// Body is the free-text content after the header block.
	Body string
}

// Get returns the last value for a header key and whether it was present.
func (it *Item) Get(key string) (string, bool) {
	for i := len(it.Fields) - 1; i >= 0; i-- {
		if it.Fields[i].Key == key {
			return it.Fields[i].Value, true
		}
	}
	return "", false
}

// Set replaces the value of a header key, appending the field if absent.
func (it *Item) Set(key, value string) {
	for i := range it.Fields {
		if it.Fields[i].Key == key {
			it.Fields[i].Value = value
			return
		}
	}
	it.Fields = append(it.Fields, Field{Key: key, Value: value})
}

// Decision returns the recorded decision, or "" if none was recorded yet.
func (it *Item) Decision() string {
	v, _ := it.Get(KeyDecision)
	return v
}

// Reasoning returns the recorded decision reasoning.
func (it *Item) Reasoning() string {
	v, _ := it.Get(KeyReasoning)
	return v
}

// Agent returns the agent that last owned the item.
func (it *Item) Agent() string {
	v, _ := it.Get(KeyAgent)
	return v
}

// Draft returns the generated draft payload embedded for human review.
func (it *Item) Draft() string {
	v, _ := it.Get(KeyDraft)
	return v
}

// Parent returns the parent item ID for synthesized children.
func (it *Item) Parent() string {
	v, _ := it.Get(KeyParent)
	return v
}

// Validate checks the typed schema once at the boundary. It re-derives
// Kind and Priority from the header fields and confirms the required
// ingest keys are present.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("%w: empty identity", errors.ErrBadItem)
	}

	typ, ok := it.Get(KeyType)
	if !ok {
		return fmt.Errorf("%w: missing %q header", errors.ErrBadItem, KeyType)
	}
	kind, err := ParseKind(typ)
	if err != nil {
		return err
	}
	it.Kind = kind

	svc, ok := it.Get(KeyService)
	if !ok || svc == "" {
		return fmt.Errorf("%w: missing %q header", errors.ErrBadItem, KeyService)
	}
	if err := ValidateChannel(svc); err != nil {
		return err
	}
	it.Service = svc

	prio, _ := it.Get(KeyPriority)
	p, err := ParsePriority(prio)
	if err != nil {
		return err
	}
	it.Priority = p

	return nil
}
