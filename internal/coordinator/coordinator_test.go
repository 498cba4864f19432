package coordinator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/drover-sh/drover/internal/audit"
	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/store"
	"github.com/drover-sh/drover/internal/workitem"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store, *FileTracking) {
	t.Helper()

	st := store.New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ft, err := OpenFileTracking(st.CoordinatorDir())
	if err != nil {
		t.Fatalf("OpenFileTracking: %v", err)
	}
	t.Cleanup(func() { _ = ft.Close() })

	log := audit.NewLog(st.AuditDir(), Agent)
	c := New(st, ft, log, event.NewBus(), logging.NopLogger())
	return c, st, ft
}

func writeParent(t *testing.T, st *store.Store, channels ...string) string {
	t.Helper()

	actions := make([]workitem.SubAction, len(channels))
	for i, ch := range channels {
		actions[i] = workitem.SubAction{Channel: ch, Payload: "post for " + ch}
	}
	body, err := workitem.EncodeSubActions(actions)
	if err != nil {
		t.Fatalf("EncodeSubActions: %v", err)
	}

	id := workitem.NewID("broadcast", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), "launch")
	parent := &workitem.Item{
		ID: id,
		Fields: []workitem.Field{
			{Key: workitem.KeyType, Value: string(workitem.KindCrossPost)},
			{Key: workitem.KeyService, Value: "broadcast"},
		},
		Body: body,
	}
	if err := st.Write(parent, store.StateApproved); err != nil {
		t.Fatalf("write parent: %v", err)
	}
	return id
}

func TestExpandFansOutChildren(t *testing.T) {
	c, st, ft := newTestCoordinator(t)
	parentID := writeParent(t, st, "twitter", "linkedin", "mastodon")

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// Parent moved into the coordinator's claim subtree.
	held, err := st.ListClaimed(Agent)
	if err != nil {
		t.Fatalf("ListClaimed: %v", err)
	}
	if len(held) != 1 || held[0] != parentID {
		t.Fatalf("held = %v, want [%s]", held, parentID)
	}

	// One child per channel written to approved.
	for _, ch := range []string{"twitter", "linkedin", "mastodon"} {
		childID := workitem.ChildID(ch, parentID)
		child, err := st.Read(childID, store.StateApproved)
		if err != nil {
			t.Fatalf("read child %s: %v", childID, err)
		}
		if child.Kind != workitem.KindSocialPost {
			t.Errorf("child kind = %q", child.Kind)
		}
		if child.Service != ch {
			t.Errorf("child service = %q, want %q", child.Service, ch)
		}
		if child.Parent() != parentID {
			t.Errorf("child parent = %q, want %q", child.Parent(), parentID)
		}
		if child.Body != "post for "+ch {
			t.Errorf("child body = %q", child.Body)
		}
	}

	parents := ft.Snapshot()
	if len(parents) != 1 || len(parents[0].Children) != 3 {
		t.Fatalf("tracking = %+v, want 1 parent with 3 children", parents)
	}
}

func TestParentCompletesOnlyWhenAllChildrenDone(t *testing.T) {
	c, st, ft := newTestCoordinator(t)
	parentID := writeParent(t, st, "twitter", "linkedin", "mastodon")
	ctx := context.Background()

	if err := c.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	var completed bool
	c.bus.Subscribe("parent.completed", func(e event.Event) {
		completed = true
	})

	// Two of three children finish.
	for _, ch := range []string{"twitter", "linkedin"} {
		childID := workitem.ChildID(ch, parentID)
		if err := st.Move(childID, store.StateApproved, store.StateDone); err != nil {
			t.Fatalf("move child: %v", err)
		}
	}
	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if completed {
		t.Fatal("parent completed with a pending child")
	}
	if held := mustHeld(t, st); len(held) != 1 || held[0] != parentID {
		t.Fatalf("held = %v, parent left the claim subtree early", held)
	}

	// Third child finishes, parent joins.
	childID := workitem.ChildID("mastodon", parentID)
	if err := st.Move(childID, store.StateApproved, store.StateDone); err != nil {
		t.Fatalf("move child: %v", err)
	}
	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !completed {
		t.Fatal("parent did not complete after the last child")
	}

	parent, err := st.Read(parentID, store.StateDone)
	if err != nil {
		t.Fatalf("read completed parent: %v", err)
	}
	result, _ := parent.Get(workitem.KeyResult)
	if !strings.Contains(result, "3 channels") {
		t.Errorf("result = %q, want completion summary", result)
	}

	if got := len(ft.Snapshot()); got != 0 {
		t.Errorf("tracking still holds %d parents after completion", got)
	}
}

func TestFailedChildKeepsParentPending(t *testing.T) {
	c, st, ft := newTestCoordinator(t)
	parentID := writeParent(t, st, "twitter", "linkedin", "mastodon")
	ctx := context.Background()

	if err := c.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	for _, ch := range []string{"twitter", "linkedin"} {
		if err := st.Move(workitem.ChildID(ch, parentID), store.StateApproved, store.StateDone); err != nil {
			t.Fatalf("move child: %v", err)
		}
	}
	if err := st.Move(workitem.ChildID("mastodon", parentID), store.StateApproved, store.StateError); err != nil {
		t.Fatalf("move child to errors: %v", err)
	}

	// Several cycles: the parent must neither complete nor be dropped.
	for i := 0; i < 3; i++ {
		if err := c.Poll(ctx); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}

	if st.Exists(parentID, store.StateDone) {
		t.Fatal("parent falsely completed with a failed child")
	}
	held := mustHeld(t, st)
	if len(held) != 1 || held[0] != parentID {
		t.Fatalf("held = %v, want parent still claimed", held)
	}

	parents := ft.Snapshot()
	if len(parents) != 1 {
		t.Fatalf("tracking dropped the pending parent")
	}
	if got := parents[0].Children[workitem.ChildID("mastodon", parentID)]; got != ChildFailed {
		t.Errorf("failed child status = %q", got)
	}

	// The stuck parent must show up in the stale report.
	c.SetStaleAfter(time.Nanosecond)
	time.Sleep(2 * time.Millisecond)
	stale := c.Stale()
	if len(stale) != 1 || stale[0].ID != parentID {
		t.Fatalf("stale = %+v, want the pending parent", stale)
	}
}

func TestRejectedChildCountsAsTerminal(t *testing.T) {
	c, st, ft := newTestCoordinator(t)
	parentID := writeParent(t, st, "twitter", "linkedin")
	ctx := context.Background()

	if err := c.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// One child publishes; a reviewer rejects the other out of band.
	if err := st.Move(workitem.ChildID("twitter", parentID), store.StateApproved, store.StateDone); err != nil {
		t.Fatalf("move child: %v", err)
	}
	if err := st.Move(workitem.ChildID("linkedin", parentID), store.StateApproved, store.StateRejected); err != nil {
		t.Fatalf("move child to rejected: %v", err)
	}

	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	parent, err := st.Read(parentID, store.StateDone)
	if err != nil {
		t.Fatalf("parent did not complete: %v", err)
	}
	result, _ := parent.Get(workitem.KeyResult)
	if !strings.Contains(result, "published to 1 channels: twitter") {
		t.Errorf("result = %q, want published channel listed", result)
	}
	if !strings.Contains(result, "rejected: linkedin") {
		t.Errorf("result = %q, want rejected channel noted", result)
	}
	if got := len(ft.Snapshot()); got != 0 {
		t.Errorf("tracking still holds %d parents after completion", got)
	}
}

func TestUnparseableParentGoesToErrors(t *testing.T) {
	c, st, _ := newTestCoordinator(t)

	id := workitem.NewID("broadcast", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), "bad")
	parent := &workitem.Item{
		ID: id,
		Fields: []workitem.Field{
			{Key: workitem.KeyType, Value: string(workitem.KindCrossPost)},
			{Key: workitem.KeyService, Value: "broadcast"},
		},
		Body: ":: not yaml ::",
	}
	if err := st.Write(parent, store.StateApproved); err != nil {
		t.Fatalf("write parent: %v", err)
	}

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if !st.Exists(id, store.StateError) {
		t.Fatal("unparseable parent was not parked in errors")
	}
}

func TestExpandIsIdempotentAfterCrash(t *testing.T) {
	c, st, ft := newTestCoordinator(t)
	parentID := writeParent(t, st, "twitter", "linkedin")
	ctx := context.Background()

	if err := c.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// Re-expanding the already-claimed parent must tolerate the
	// existing children instead of failing on the exclusive create.
	if err := c.Expand(parentID); err != nil {
		t.Fatalf("re-Expand: %v", err)
	}

	parents := ft.Snapshot()
	if len(parents) != 1 || len(parents[0].Children) != 2 {
		t.Fatalf("tracking = %+v after re-expansion", parents)
	}
}

func TestRebuildRecoversTracking(t *testing.T) {
	c, st, ft := newTestCoordinator(t)
	parentID := writeParent(t, st, "twitter", "linkedin", "mastodon", "bluesky")
	ctx := context.Background()

	if err := c.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if err := st.Move(workitem.ChildID("twitter", parentID), store.StateApproved, store.StateDone); err != nil {
		t.Fatalf("move child: %v", err)
	}
	if err := st.Move(workitem.ChildID("linkedin", parentID), store.StateApproved, store.StateError); err != nil {
		t.Fatalf("move child: %v", err)
	}
	if err := st.Move(workitem.ChildID("bluesky", parentID), store.StateApproved, store.StateRejected); err != nil {
		t.Fatalf("move child: %v", err)
	}

	// Simulate losing the tracking log.
	for _, p := range ft.Snapshot() {
		if err := ft.Forget(p.ID); err != nil {
			t.Fatalf("Forget: %v", err)
		}
	}

	if err := c.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	parents := ft.Snapshot()
	if len(parents) != 1 {
		t.Fatalf("rebuilt parents = %d, want 1", len(parents))
	}
	children := parents[0].Children
	if got := children[workitem.ChildID("twitter", parentID)]; got != ChildDone {
		t.Errorf("twitter child = %q, want done", got)
	}
	if got := children[workitem.ChildID("linkedin", parentID)]; got != ChildFailed {
		t.Errorf("linkedin child = %q, want failed", got)
	}
	if got := children[workitem.ChildID("mastodon", parentID)]; got != ChildPending {
		t.Errorf("mastodon child = %q, want pending", got)
	}
	if got := children[workitem.ChildID("bluesky", parentID)]; got != ChildRejected {
		t.Errorf("bluesky child = %q, want rejected", got)
	}
}

func mustHeld(t *testing.T, st *store.Store) []string {
	t.Helper()
	held, err := st.ListClaimed(Agent)
	if err != nil {
		t.Fatalf("ListClaimed: %v", err)
	}
	return held
}
