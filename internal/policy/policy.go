// Package policy defines the rule table the decision engine falls back
// on when no classifier is reachable. Rules are ordered boolean
// predicates over item metadata and content, evaluated deterministically:
// reject keywords, always-manual channels, always-manual priorities,
// known-safe auto-approvals, then the manual default.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/drover-sh/drover/internal/workitem"
	"gopkg.in/yaml.v3"
)

// SafeRule describes one known-safe auto-approve match. Empty fields
// match anything.
type SafeRule struct {
	Service string `yaml:"service"`
	Type    string `yaml:"type"`
}

// Policy is the loaded policy document.
type Policy struct {
	// RejectKeywords reject an item outright when any appears in the
	// body or a header value. Matching is case-insensitive.
	RejectKeywords []string `yaml:"reject_keywords"`

	// ManualChannels always require human review (e.g. social channels).
	ManualChannels []string `yaml:"manual_channels"`

	// ManualPriorities always require human review (e.g. urgent).
	ManualPriorities []string `yaml:"manual_priorities"`

	// AutoApprove lists known-safe service/type combinations.
	AutoApprove []SafeRule `yaml:"auto_approve"`

	// Context is free text handed to the classifier as policy context.
	Context string `yaml:"context"`
}

// Default returns the policy used when no document is configured:
// nothing is rejected, social posts and urgent items need review,
// nothing auto-approves, so everything lands in review.
func Default() *Policy {
	return &Policy{
		ManualChannels:   []string{"twitter", "linkedin", "facebook"},
		ManualPriorities: []string{string(workitem.PriorityUrgent)},
	}
}

// Load reads a policy document from a YAML file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return &p, nil
}

// Verdict is the outcome of rule evaluation.
type Verdict struct {
	Decision  string // approve, reject, or manual; rules never draft
	Rule      string // which rule fired
	Reasoning string
}

// Evaluate runs the fixed-priority rule table over one item. It is
// deterministic: the first matching rule wins and the default is manual.
func (p *Policy) Evaluate(it *workitem.Item) Verdict {
	if kw, ok := p.matchRejectKeyword(it); ok {
		return Verdict{
			Decision:  "reject",
			Rule:      "reject_keyword",
			Reasoning: fmt.Sprintf("body or metadata matched reject keyword %q", kw),
		}
	}

	for _, ch := range p.ManualChannels {
		if strings.EqualFold(ch, it.Service) {
			return Verdict{
				Decision:  "manual",
				Rule:      "manual_channel",
				Reasoning: fmt.Sprintf("channel %q always requires review", it.Service),
			}
		}
	}

	for _, prio := range p.ManualPriorities {
		if strings.EqualFold(prio, string(it.Priority)) {
			return Verdict{
				Decision:  "manual",
				Rule:      "manual_priority",
				Reasoning: fmt.Sprintf("priority %q always requires review", it.Priority),
			}
		}
	}

	for _, rule := range p.AutoApprove {
		if matchField(rule.Service, it.Service) && matchField(rule.Type, string(it.Kind)) {
			return Verdict{
				Decision:  "approve",
				Rule:      "auto_approve",
				Reasoning: fmt.Sprintf("known-safe: service=%s type=%s", it.Service, it.Kind),
			}
		}
	}

	return Verdict{
		Decision:  "manual",
		Rule:      "default",
		Reasoning: "no rule matched; defaulting to human review",
	}
}

// matchRejectKeyword scans the body and every header value.
// The reject rule is the highest-priority predicate: it wins regardless
// of any other field.
func (p *Policy) matchRejectKeyword(it *workitem.Item) (string, bool) {
	body := strings.ToLower(it.Body)
	for _, kw := range p.RejectKeywords {
		needle := strings.ToLower(kw)
		if needle == "" {
			continue
		}
		if strings.Contains(body, needle) {
			return kw, true
		}
		for _, f := range it.Fields {
			if strings.Contains(strings.ToLower(f.Value), needle) {
				return kw, true
			}
		}
	}
	return "", false
}

func matchField(pattern, value string) bool {
	return pattern == "" || strings.EqualFold(pattern, value)
}
