package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/drover-sh/drover/internal/errors"
)

// Post is one publish request handed to a channel Publisher.
type Post struct {
	Channel string            `json:"channel"`
	ItemID  string            `json:"item"`
	Payload string            `json:"payload"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Result is a successful publish outcome.
type Result struct {
	// ExternalID is the destination's identifier for the published
	// content (a tweet id, a message id), when the publisher has one.
	ExternalID string `json:"external_id,omitempty"`
}

// Publisher performs the actual side-effecting publish for one channel.
// Implementations must make the call idempotent or safely retryable:
// the monitor retries failures and never cancels mid-item.
type Publisher interface {
	Publish(ctx context.Context, post Post) (Result, error)
}

// CommandPublisher shells out to a per-channel configured command. The
// Post is written to stdin as JSON; on success the command exits zero
// and may print a Result JSON object to stdout.
type CommandPublisher struct {
	command string
	timeout time.Duration
}

// NewCommandPublisher creates a publisher invoking the given shell
// command. A zero timeout defaults to 120 seconds.
func NewCommandPublisher(command string, timeout time.Duration) *CommandPublisher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &CommandPublisher{command: command, timeout: timeout}
}

// Publish runs the command once. Any process-level failure surfaces as
// ErrPublishFailed; the monitor counts those toward escalation.
func (p *CommandPublisher) Publish(ctx context.Context, post Post) (Result, error) {
	if p.command == "" {
		return Result{}, errors.Wrapf(errors.ErrPublishFailed,
			"no publisher command configured for channel %s", post.Channel)
	}

	input, err := json.Marshal(post)
	if err != nil {
		return Result{}, fmt.Errorf("marshal publish request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", p.command)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, errors.Wrapf(errors.ErrPublishFailed,
			"publisher command failed (%v, stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	// Result output is optional; an empty or non-JSON stdout is a
	// success without an external id.
	var res Result
	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) > 0 {
		_ = json.Unmarshal(out, &res)
	}
	return res, nil
}
