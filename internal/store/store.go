package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/workitem"
)

// Reserved directory names under the root that are not item states.
const (
	// AuditDirName holds the append-only transition logs.
	AuditDirName = "audit"

	// CoordinatorDirName holds cross-channel tracking state.
	CoordinatorDirName = "coordinator"
)

// Store is a directory-backed work item store rooted at one path.
// The zero value is not usable; call New.
type Store struct {
	root string
}

// New creates a Store rooted at the given path. Call Init before first
// use to materialize the directory layout.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the store's root path.
func (s *Store) Root() string {
	return s.root
}

// Init creates the full directory layout. Safe to call repeatedly.
func (s *Store) Init() error {
	dirs := []string{
		s.AuditDir(),
		s.CoordinatorDir(),
		s.Dir(StateClaimed),
	}
	for _, st := range States() {
		if st == StateClaimed {
			continue
		}
		dirs = append(dirs, s.Dir(st))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Dir returns the directory for a state. For StateClaimed this is the
// parent of the per-agent subtrees; use ClaimDir for a specific agent.
func (s *Store) Dir(state State) string {
	return filepath.Join(s.root, state.String())
}

// ClaimDir returns the claim subtree for one agent.
func (s *Store) ClaimDir(agent string) string {
	return filepath.Join(s.root, StateClaimed.String(), agent)
}

// AuditDir returns the audit log directory.
func (s *Store) AuditDir() string {
	return filepath.Join(s.root, AuditDirName)
}

// CoordinatorDir returns the coordinator state directory.
func (s *Store) CoordinatorDir() string {
	return filepath.Join(s.root, CoordinatorDirName)
}

// List returns the sorted identities present in a non-claimed state.
func (s *Store) List(state State) ([]string, error) {
	if state == StateClaimed {
		return nil, fmt.Errorf("list claimed items per agent with ListClaimed")
	}
	return listDir(s.Dir(state))
}

// ListClaimed returns the sorted identities in one agent's claim subtree.
// A missing subtree reads as empty: the agent simply has no claims yet.
func (s *Store) ListClaimed(agent string) ([]string, error) {
	ids, err := listDir(s.ClaimDir(agent))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return ids, err
}

// ClaimAgents returns the agents that currently have a claim subtree.
func (s *Store) ClaimAgents() ([]string, error) {
	entries, err := os.ReadDir(s.Dir(StateClaimed))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read claim dir: %w", err)
	}

	var agents []string
	for _, e := range entries {
		if e.IsDir() {
			agents = append(agents, e.Name())
		}
	}
	sort.Strings(agents)
	return agents, nil
}

// ClaimedBy scans every agent's claim subtree for the identity.
// Returns the owning agent and true if found.
func (s *Store) ClaimedBy(id string) (string, bool, error) {
	agents, err := s.ClaimAgents()
	if err != nil {
		return "", false, err
	}
	name := workitem.Filename(id)
	for _, agent := range agents {
		if _, err := os.Stat(filepath.Join(s.ClaimDir(agent), name)); err == nil {
			return agent, true, nil
		}
	}
	return "", false, nil
}

// Exists reports whether the identity is present in a non-claimed state.
func (s *Store) Exists(id string, state State) bool {
	_, err := os.Stat(filepath.Join(s.Dir(state), workitem.Filename(id)))
	return err == nil
}

// Locate scans every state for the identity. The single-state invariant
// means at most one location can hold it; Locate returns the first found,
// checking claim subtrees last.
func (s *Store) Locate(id string) (State, string, error) {
	for _, st := range States() {
		if st == StateClaimed {
			continue
		}
		if s.Exists(id, st) {
			return st, "", nil
		}
	}
	agent, ok, err := s.ClaimedBy(id)
	if err != nil {
		return "", "", err
	}
	if ok {
		return StateClaimed, agent, nil
	}
	return "", "", errors.Wrap(errors.ErrItemNotFound, id)
}

// Counts returns the number of items per state. Claimed counts every
// agent's subtree together.
func (s *Store) Counts() (map[State]int, error) {
	counts := make(map[State]int, len(States()))
	for _, st := range States() {
		if st == StateClaimed {
			continue
		}
		ids, err := s.List(st)
		if err != nil {
			return nil, err
		}
		counts[st] = len(ids)
	}

	agents, err := s.ClaimAgents()
	if err != nil {
		return nil, err
	}
	for _, agent := range agents {
		ids, err := s.ListClaimed(agent)
		if err != nil {
			return nil, err
		}
		counts[StateClaimed] += len(ids)
	}
	return counts, nil
}

// listDir returns the sorted work item identities in one directory.
// Non-item files are skipped.
func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := workitem.IDFromFilename(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
