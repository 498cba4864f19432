// Package decision implements the decision engine: it disposes of a
// claimed work item into the fixed vocabulary {approve, reject, manual,
// draft} using an external classifier when one is configured and the
// deterministic policy rule table otherwise. The engine performs no file
// moves; routing belongs to the gate.
package decision

import (
	"context"
	"fmt"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/policy"
	"github.com/drover-sh/drover/internal/workitem"
)

// Outcome is one value of the enumerated decision vocabulary.
type Outcome string

const (
	Approve Outcome = "approve"
	Reject  Outcome = "reject"
	Manual  Outcome = "manual"
	Draft   Outcome = "draft"
)

// ParseOutcome validates a decision string against the vocabulary.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case Approve, Reject, Manual, Draft:
		return Outcome(s), nil
	}
	return "", fmt.Errorf("%w: %q", errors.ErrMalformedResponse, s)
}

// Decision sources, recorded for audit and observability.
const (
	SourceClassifier = "classifier"
	SourceRules      = "rules"
	SourceFallback   = "fallback" // rules, reached because the classifier failed
)

// Decision is the engine's disposition of one item. Immutable once
// recorded into the item; re-produced only if the item returns to intake.
type Decision struct {
	Outcome   Outcome
	Payload   string // generated draft text, for Outcome == Draft
	Reasoning string
	Source    string
}

// Request is what a classifier sees: the policy context plus the item's
// metadata and body. The classifier call itself stays behind the
// Classifier interface.
type Request struct {
	PolicyContext string            `json:"policy_context"`
	Metadata      map[string]string `json:"metadata"`
	Body          string            `json:"body"`
}

// Response is the classifier's reply. The decision field must parse into
// the vocabulary; anything else fails closed to manual.
type Response struct {
	Decision  string `json:"decision"`
	Reasoning string `json:"reasoning"`
	Draft     string `json:"draft,omitempty"`
}

// Classifier submits an item for external classification.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Response, error)
}

// Engine produces decisions. Configure with a nil classifier to run on
// rules alone.
type Engine struct {
	policy     *policy.Policy
	classifier Classifier
	logger     *logging.Logger
}

// NewEngine creates a decision engine. A nil policy falls back to
// policy.Default(); a nil classifier disables the classifier path.
func NewEngine(p *policy.Policy, c Classifier, logger *logging.Logger) *Engine {
	if p == nil {
		p = policy.Default()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Engine{policy: p, classifier: c, logger: logger}
}

// Decide disposes of one item. Every path produces a reasoning string
// and none returns an error to the caller: classifier trouble degrades
// to the rule table, and malformed responses fail closed to manual.
func (e *Engine) Decide(ctx context.Context, it *workitem.Item) Decision {
	if e.classifier != nil {
		d, ok := e.classify(ctx, it)
		if ok {
			return d
		}
		// Unavailable or errored: recover locally via the rule table.
		d = e.evaluateRules(it)
		d.Source = SourceFallback
		return d
	}
	return e.evaluateRules(it)
}

// classify runs the external classifier. The second return is false when
// the classifier could not be reached at all; a reachable classifier
// yielding garbage is handled here by failing closed.
func (e *Engine) classify(ctx context.Context, it *workitem.Item) (Decision, bool) {
	req := Request{
		PolicyContext: e.policy.Context,
		Metadata:      metadata(it),
		Body:          it.Body,
	}

	resp, err := e.classifier.Classify(ctx, req)
	if errors.Is(err, errors.ErrMalformedResponse) {
		// The classifier answered but the answer is unusable; failing
		// closed keeps a human in the loop.
		e.logger.Warn("malformed classifier response, failing closed",
			"item", it.ID, "error", err)
		return Decision{
			Outcome:   Manual,
			Reasoning: "classifier response was malformed; failing closed to manual",
			Source:    SourceClassifier,
		}, true
	}
	if err != nil {
		e.logger.Warn("classifier unavailable, falling back to rules",
			"item", it.ID, "error", err)
		return Decision{}, false
	}

	outcome, err := ParseOutcome(resp.Decision)
	if err != nil {
		e.logger.Warn("classifier response outside vocabulary, failing closed",
			"item", it.ID, "decision", resp.Decision)
		return Decision{
			Outcome:   Manual,
			Reasoning: fmt.Sprintf("classifier returned %q; failing closed to manual", resp.Decision),
			Source:    SourceClassifier,
		}, true
	}

	d := Decision{
		Outcome:   outcome,
		Payload:   resp.Draft,
		Reasoning: resp.Reasoning,
		Source:    SourceClassifier,
	}
	if d.Reasoning == "" {
		d.Reasoning = "classifier gave no reasoning"
	}

	// A draft without a generated payload leaves the human nothing to
	// review; downgrade so they can still act.
	if d.Outcome == Draft && d.Payload == "" {
		e.logger.Warn("draft decision without payload, downgrading to manual", "item", it.ID)
		d.Outcome = Manual
		d.Reasoning = "draft generation produced no payload; " + d.Reasoning
	}
	return d, true
}

// evaluateRules maps a policy verdict onto a Decision.
func (e *Engine) evaluateRules(it *workitem.Item) Decision {
	v := e.policy.Evaluate(it)
	outcome, err := ParseOutcome(v.Decision)
	if err != nil {
		// Rules only emit vocabulary values; treat anything else as a
		// programming error surfaced safely.
		outcome = Manual
	}
	return Decision{
		Outcome:   outcome,
		Reasoning: fmt.Sprintf("[%s] %s", v.Rule, v.Reasoning),
		Source:    SourceRules,
	}
}

// metadata flattens the item's header fields for the classifier.
// Later duplicates win, matching Item.Get.
func metadata(it *workitem.Item) map[string]string {
	m := make(map[string]string, len(it.Fields))
	for _, f := range it.Fields {
		m[f.Key] = f.Value
	}
	return m
}
