package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/workitem"
)

// Move renames an item between two non-claimed states. The rename is the
// transition: the item is never visible in both directories.
func (s *Store) Move(id string, from, to State) error {
	return s.rename(id, s.Dir(from), s.Dir(to))
}

// MoveToClaim renames an item from a state directory into one agent's
// claim subtree. A vanished source means another agent moved it first;
// that surfaces as ErrRaceLost, which callers treat as an expected
// outcome, not a failure.
func (s *Store) MoveToClaim(id string, from State, agent string) error {
	dir := s.ClaimDir(agent)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create claim dir: %w", err)
	}
	return s.rename(id, s.Dir(from), dir)
}

// MoveFromClaim renames an item out of one agent's claim subtree into a
// state directory.
func (s *Store) MoveFromClaim(id string, agent string, to State) error {
	return s.rename(id, s.ClaimDir(agent), s.Dir(to))
}

// rename performs the single atomic state transition. Exactly one of two
// concurrent renames of the same source succeeds; the loser observes the
// source gone and gets ErrRaceLost. A pre-existing destination is an
// identity collision and is refused rather than overwritten.
func (s *Store) rename(id, fromDir, toDir string) error {
	name := workitem.Filename(id)
	src := filepath.Join(fromDir, name)
	dst := filepath.Join(toDir, name)

	// rename(2) would silently replace dst. Destinations are distinct by
	// construction: an identity is materialized exactly once via O_EXCL
	// and moved as a single file, so dst can only pre-exist if an
	// identity was reused, and nothing can create it inside the window
	// between this check and the rename. renameat2(RENAME_NOREPLACE)
	// would enforce the same at the syscall level but is Linux-only.
	if _, err := os.Stat(dst); err == nil {
		return errors.Wrap(errors.ErrItemExists, id)
	}

	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrRaceLost, id)
		}
		return fmt.Errorf("move %s: %w", id, err)
	}
	return nil
}
