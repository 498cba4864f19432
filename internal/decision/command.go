package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/util"
)

// CommandClassifier shells out to a configured classifier command (an
// LLM CLI or any executable honoring the contract): the Request is
// written to stdin as JSON and the Response is read from stdout as JSON.
// Protocol detail beyond that contract never leaks into the engine.
type CommandClassifier struct {
	command string
	timeout time.Duration
}

// NewCommandClassifier creates a classifier invoking the given shell
// command. A zero timeout defaults to 60 seconds.
func NewCommandClassifier(command string, timeout time.Duration) *CommandClassifier {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CommandClassifier{command: command, timeout: timeout}
}

// Classify runs the command once. Process-level failures surface as
// ErrClassifierUnavailable so the engine falls back to rules; unusable
// output surfaces as ErrMalformedResponse so the engine fails closed.
func (c *CommandClassifier) Classify(ctx context.Context, req Request) (Response, error) {
	if c.command == "" {
		return Response{}, errors.Wrap(errors.ErrClassifierUnavailable, "no classifier command configured")
	}

	input, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal classifier request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", c.command)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Response{}, errors.Wrapf(errors.ErrClassifierUnavailable,
			"classifier command failed (%v, stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	resp, err := parseResponse(stdout.Bytes())
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// parseResponse extracts the response JSON object from command output.
// LLM CLIs often wrap their answer in prose, so after a direct parse
// fails we retry on the outermost brace-delimited span.
func parseResponse(out []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err == nil {
		return resp, nil
	}

	start := bytes.IndexByte(out, '{')
	end := bytes.LastIndexByte(out, '}')
	if start < 0 || end <= start {
		return Response{}, errors.Wrapf(errors.ErrMalformedResponse,
			"no JSON object in classifier output %q", util.TruncateString(string(out), 120))
	}
	if err := json.Unmarshal(out[start:end+1], &resp); err != nil {
		return Response{}, errors.Wrapf(errors.ErrMalformedResponse,
			"parse classifier output: %v", err)
	}
	return resp, nil
}
