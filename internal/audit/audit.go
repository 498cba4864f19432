// Package audit provides the append-only transition log. Every state
// transition and error in the pipeline is appended as one JSON line to a
// per-agent, per-day file; entries are never mutated. The log is the
// sole basis for recovery and external observability.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Well-known audit actions.
const (
	ActionClaimed    = "claimed"
	ActionReleased   = "released"
	ActionDecided    = "decided"
	ActionReturned   = "returned"
	ActionPublished  = "published"
	ActionEscalated  = "escalated"
	ActionExpanded   = "expanded"
	ActionChildAdded = "child_added"
	ActionCompleted  = "completed"
	ActionError      = "error"
)

// Entry is one append-only audit record.
type Entry struct {
	Time   time.Time `json:"ts"`
	Agent  string    `json:"agent"`
	ItemID string    `json:"item"`
	Action string    `json:"action"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Log appends entries for one agent. Writes are serialized via a mutex
// within the process and use O_APPEND, so concurrent agents appending to
// their own files never interleave partial lines.
type Log struct {
	dir   string
	agent string
	mu    sync.Mutex
	now   func() time.Time
}

// NewLog creates a Log writing under dir for the named agent.
// The directory is created lazily on first append.
func NewLog(dir, agent string) *Log {
	return &Log{dir: dir, agent: agent, now: time.Now}
}

// Append records one entry. Time and Agent are filled in if zero.
func (l *Log) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	if e.Agent == "" {
		e.Agent = l.agent
	}
	if e.ItemID == "" {
		return fmt.Errorf("audit: entry item ID is required")
	}
	if e.Action == "" {
		return fmt.Errorf("audit: entry action is required")
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("audit: create directory: %w", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.fileFor(e.Time), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: append entry: %w", err)
	}
	return f.Close()
}

// Transition is a convenience wrapper recording a state move.
func (l *Log) Transition(itemID, action, from, to string) error {
	return l.Append(Entry{ItemID: itemID, Action: action, From: from, To: to})
}

// fileFor returns the log file path for the entry's day.
func (l *Log) fileFor(t time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl", l.agent, t.UTC().Format("2006-01-02")))
}

// ReadAll returns every entry under dir across all agents and days,
// sorted chronologically. Used by status reporting and tests; malformed
// lines are skipped rather than failing the whole read.
func ReadAll(dir string) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: glob logs: %w", err)
	}
	sort.Strings(matches)

	var entries []Entry
	for _, path := range matches {
		fileEntries, err := readFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

// ReadItem returns all entries for one identity, oldest first.
func ReadItem(dir, itemID string) ([]Entry, error) {
	all, err := ReadAll(dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, e := range all {
		if e.ItemID == itemID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func readFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // torn or foreign line
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan %s: %w", path, err)
	}
	return entries, nil
}
