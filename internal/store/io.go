package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/workitem"
)

// Read decodes the item from a non-claimed state directory.
func (s *Store) Read(id string, state State) (*workitem.Item, error) {
	return readItem(id, filepath.Join(s.Dir(state), workitem.Filename(id)))
}

// ReadClaimed decodes the item from one agent's claim subtree.
func (s *Store) ReadClaimed(id string, agent string) (*workitem.Item, error) {
	return readItem(id, filepath.Join(s.ClaimDir(agent), workitem.Filename(id)))
}

// Write materializes a new identity in a state directory. The create is
// exclusive: an identity that already exists anywhere it could land is a
// hard error, never an overwrite.
func (s *Store) Write(it *workitem.Item, state State) error {
	if err := it.Validate(); err != nil {
		return err
	}

	path := filepath.Join(s.Dir(state), workitem.Filename(it.ID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrap(errors.ErrItemExists, it.ID)
		}
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := f.Write(workitem.Encode(it)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Rewrite replaces the content of an item the caller already owns,
// in place, via a temp file and rename so a reader never sees a partial
// write. The item must already exist in the given location.
func (s *Store) Rewrite(it *workitem.Item, state State, agent string) error {
	dir := s.Dir(state)
	if state == StateClaimed {
		dir = s.ClaimDir(agent)
	}

	path := filepath.Join(dir, workitem.Filename(it.ID))
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(errors.ErrItemNotFound, it.ID)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, workitem.Encode(it), 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// readItem loads and decodes one item file.
func readItem(id, path string) (*workitem.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return workitem.Decode(id, data)
}
