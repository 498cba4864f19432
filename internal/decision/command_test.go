package decision

import (
	"context"
	"testing"
	"time"

	"github.com/drover-sh/drover/internal/errors"
)

func TestCommandClassifierJSONContract(t *testing.T) {
	c := NewCommandClassifier(`cat >/dev/null; echo '{"decision":"approve","reasoning":"ok"}'`, 10*time.Second)

	resp, err := c.Classify(context.Background(), Request{Body: "hello"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if resp.Decision != "approve" || resp.Reasoning != "ok" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCommandClassifierProseWrappedJSON(t *testing.T) {
	c := NewCommandClassifier(`cat >/dev/null; echo 'Here is my answer: {"decision":"manual","reasoning":"needs a look"} hope that helps'`, 10*time.Second)

	resp, err := c.Classify(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if resp.Decision != "manual" {
		t.Errorf("decision = %q", resp.Decision)
	}
}

func TestCommandClassifierFailureIsUnavailable(t *testing.T) {
	c := NewCommandClassifier(`exit 3`, 10*time.Second)

	_, err := c.Classify(context.Background(), Request{})
	if !errors.Is(err, errors.ErrClassifierUnavailable) {
		t.Errorf("err = %v, want ErrClassifierUnavailable", err)
	}
}

func TestCommandClassifierGarbageIsMalformed(t *testing.T) {
	c := NewCommandClassifier(`cat >/dev/null; echo 'no json here'`, 10*time.Second)

	_, err := c.Classify(context.Background(), Request{})
	if !errors.Is(err, errors.ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestCommandClassifierEmptyCommand(t *testing.T) {
	c := NewCommandClassifier("", 0)

	_, err := c.Classify(context.Background(), Request{})
	if !errors.Is(err, errors.ErrClassifierUnavailable) {
		t.Errorf("err = %v, want ErrClassifierUnavailable", err)
	}
}

func TestCommandClassifierReceivesRequestOnStdin(t *testing.T) {
	// The command echoes a field of the request back, proving the JSON
	// request reached stdin.
	c := NewCommandClassifier(`grep -q "triage context" && echo '{"decision":"reject","reasoning":"saw context"}'`, 10*time.Second)

	resp, err := c.Classify(context.Background(), Request{PolicyContext: "triage context"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if resp.Decision != "reject" {
		t.Errorf("decision = %q", resp.Decision)
	}
}
