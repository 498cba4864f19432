package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/drover-sh/drover/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "agent.poll_interval_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// agentNameRegex validates agent name characters. Names become directory
// and audit file name segments, so only safe characters are allowed.
var agentNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Store.Root == "" {
		errors = append(errors, ValidationError{
			Field:   "store.root",
			Value:   c.Store.Root,
			Message: "store root must not be empty",
		})
	}

	if !agentNameRegex.MatchString(c.Agent.Name) {
		errors = append(errors, ValidationError{
			Field:   "agent.name",
			Value:   c.Agent.Name,
			Message: "agent name must be lowercase alphanumeric with - or _",
		})
	}
	if c.Agent.PollIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "agent.poll_interval_seconds",
			Value:   c.Agent.PollIntervalSeconds,
			Message: "poll interval must be at least 1 second",
		})
	}

	if c.Classifier.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "classifier.timeout_seconds",
			Value:   c.Classifier.TimeoutSeconds,
			Message: "classifier timeout must be at least 1 second",
		})
	}

	for name, ch := range c.Channels {
		if ch.Command == "" {
			errors = append(errors, ValidationError{
				Field:   "channels." + name + ".command",
				Value:   ch.Command,
				Message: "channel must configure a publisher command",
			})
		}
	}

	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: "must allow at least one attempt",
		})
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.jitter",
			Value:   c.Retry.Jitter,
			Message: "jitter must be in 0..1",
		})
	}

	if c.Coordinator.PollIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.poll_interval_seconds",
			Value:   c.Coordinator.PollIntervalSeconds,
			Message: "poll interval must be at least 1 second",
		})
	}
	if c.Coordinator.StaleAfterHours < 1 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.stale_after_hours",
			Value:   c.Coordinator.StaleAfterHours,
			Message: "stale threshold must be at least 1 hour",
		})
	}

	if !slices.ContainsFunc(logging.ValidLevels(), func(l string) bool {
		return strings.EqualFold(l, c.Logging.Level)
	}) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}

	return errors
}
