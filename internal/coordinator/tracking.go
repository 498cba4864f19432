package coordinator

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

	"github.com/drover-sh/drover/internal/errors"
)

const trackingFileName = "tracking.jsonl"

// ChildStatus is the coordinator's view of one child.
type ChildStatus string

const (
	// ChildPending: the child has not reached a terminal state yet.
	ChildPending ChildStatus = "pending"

	// ChildDone: the child reached the done archive.
	ChildDone ChildStatus = "done"

	// ChildRejected: a human moved the child to rejected. Terminal for
	// the join; the channel is simply skipped in the summary.
	ChildRejected ChildStatus = "rejected"

	// ChildFailed: the child was parked in the errors state. The parent
	// stays pending indefinitely.
	ChildFailed ChildStatus = "failed"
)

// Parent is the tracked fan-out state of one expanded parent.
type Parent struct {
	ID         string
	Children   map[string]ChildStatus
	ExpandedAt time.Time
}

// Complete reports whether every child reached a terminal state that
// allows the join to close. Done and rejected both count; a failed
// child blocks completion until an operator intervenes.
func (p *Parent) Complete() bool {
	if len(p.Children) == 0 {
		return false
	}
	for _, st := range p.Children {
		if st != ChildDone && st != ChildRejected {
			return false
		}
	}
	return true
}

// TrackingStore persists the parent -> child -> status map so a process
// restart never loses fan-out tracking.
type TrackingStore interface {
	// Snapshot returns a copy of every tracked parent.
	Snapshot() []*Parent

	// Put records or updates one child's status under a parent.
	Put(parentID, childID string, status ChildStatus) error

	// Forget drops a completed parent and compacts the log.
	Forget(parentID string) error

	// Close releases the store.
	Close() error
}

// record is one line of the append-then-compact log.
type record struct {
	TS     time.Time   `json:"ts"`
	Parent string      `json:"parent"`
	Child  string      `json:"child,omitempty"`
	Status ChildStatus `json:"status,omitempty"`
	Drop   bool        `json:"drop,omitempty"`
}

// FileTracking is the JSONL-backed TrackingStore. Updates append one
// line; Forget rewrites the whole file via a temp file and rename so the
// log never shrinks mid-read. An exclusive flock held from open to close
// enforces the single-coordinator assumption.
type FileTracking struct {
	mu      sync.Mutex
	path    string
	lock    *fileLock
	parents map[string]*Parent
	now     func() time.Time
}

// ReadTracking loads the tracking log read-only, without taking the
// coordinator lock. Status reporting uses this to inspect a store while
// a live coordinator holds the lock; the snapshot may be momentarily
// behind the coordinator's in-memory state.
func ReadTracking(dir string) ([]*Parent, error) {
	ft := &FileTracking{
		path:    filepath.Join(dir, trackingFileName),
		parents: make(map[string]*Parent),
		now:     time.Now,
	}
	if err := ft.load(); err != nil {
		return nil, err
	}
	return ft.Snapshot(), nil
}

// DiscardTracking moves a corrupt tracking log aside so a fresh store
// can be opened and rebuilt. The old log is kept for inspection.
func DiscardTracking(dir string) error {
	path := filepath.Join(dir, trackingFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Rename(path, path+".corrupt")
}

// OpenFileTracking loads (or creates) the tracking store under dir.
// Returns ErrCorruptTracking if the log cannot be parsed: that is fatal
// to the coordinator, which should fall back to Rebuild.
func OpenFileTracking(dir string) (*FileTracking, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tracking dir: %w", err)
	}

	lock := newFileLock(dir)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tracking store in %s is locked by another coordinator", dir)
	}

	ft := &FileTracking{
		path:    filepath.Join(dir, trackingFileName),
		lock:    lock,
		parents: make(map[string]*Parent),
		now:     time.Now,
	}

	if err := ft.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return ft, nil
}

// load replays the log into memory.
func (ft *FileTracking) load() error {
	f, err := os.Open(ft.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open tracking log: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(text), &r); err != nil || r.Parent == "" {
			return errors.Wrapf(errors.ErrCorruptTracking, "%s line %d", ft.path, line)
		}
		ft.apply(r)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(errors.ErrCorruptTracking, "scan %s", ft.path)
	}
	return nil
}

// apply folds one record into the in-memory map.
func (ft *FileTracking) apply(r record) {
	if r.Drop {
		delete(ft.parents, r.Parent)
		return
	}

	p, ok := ft.parents[r.Parent]
	if !ok {
		p = &Parent{
			ID:         r.Parent,
			Children:   make(map[string]ChildStatus),
			ExpandedAt: r.TS,
		}
		ft.parents[r.Parent] = p
	}
	if r.TS.Before(p.ExpandedAt) || p.ExpandedAt.IsZero() {
		p.ExpandedAt = r.TS
	}
	if r.Child != "" {
		p.Children[r.Child] = r.Status
	}
}

// Snapshot returns a deep copy of every tracked parent, sorted by ID.
func (ft *FileTracking) Snapshot() []*Parent {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	out := make([]*Parent, 0, len(ft.parents))
	for _, p := range ft.parents {
		cp := &Parent{
			ID:         p.ID,
			Children:   make(map[string]ChildStatus, len(p.Children)),
			ExpandedAt: p.ExpandedAt,
		}
		for child, st := range p.Children {
			cp.Children[child] = st
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put records one child status and appends it to the log.
func (ft *FileTracking) Put(parentID, childID string, status ChildStatus) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	r := record{TS: ft.now(), Parent: parentID, Child: childID, Status: status}
	ft.apply(r)
	return ft.append(r)
}

// Forget drops a parent and compacts the log to the surviving records.
func (ft *FileTracking) Forget(parentID string) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	delete(ft.parents, parentID)
	return ft.compact()
}

// Close compacts and releases the flock.
func (ft *FileTracking) Close() error {
	ft.mu.Lock()
	err := ft.compact()
	ft.mu.Unlock()

	if uerr := ft.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// append writes one record line. O_APPEND keeps lines whole.
func (ft *FileTracking) append(r record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal tracking record: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(ft.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tracking log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("append tracking record: %w", err)
	}
	return f.Close()
}

// compact rewrites the log to one record per live child, atomically:
// data goes to a temp file first, then renames into place.
func (ft *FileTracking) compact() error {
	var b strings.Builder
	for _, p := range ft.parents {
		for child, st := range p.Children {
			data, err := json.Marshal(record{
				TS:     p.ExpandedAt,
				Parent: p.ID,
				Child:  child,
				Status: st,
			})
			if err != nil {
				return fmt.Errorf("marshal tracking record: %w", err)
			}
			b.Write(data)
			b.WriteByte('\n')
		}
	}

	tmp := ft.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write temp tracking file: %w", err)
	}
	if err := os.Rename(tmp, ft.path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp tracking file: %w", err)
	}
	return nil
}
