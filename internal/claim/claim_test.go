package claim

import (
	"sync"
	"testing"
	"time"

	"github.com/drover-sh/drover/internal/audit"
	"github.com/drover-sh/drover/internal/errors"
	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/logging"
	"github.com/drover-sh/drover/internal/store"
	"github.com/drover-sh/drover/internal/workitem"
)

func newFixture(t *testing.T) (*store.Store, *event.Bus) {
	t.Helper()
	st := store.New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return st, event.NewBus()
}

func newManager(st *store.Store, bus *event.Bus, agent string) *Manager {
	return NewManager(agent, st, audit.NewLog(st.AuditDir(), agent), bus, logging.NopLogger())
}

func seedIntake(t *testing.T, st *store.Store, id string) {
	t.Helper()
	it := &workitem.Item{
		ID: id,
		Fields: []workitem.Field{
			{Key: workitem.KeyType, Value: "message"},
			{Key: workitem.KeyService, Value: "email"},
			{Key: workitem.KeyPriority, Value: "normal"},
			{Key: workitem.KeyStatus, Value: "pending"},
		},
		Body: "hi\n",
	}
	if err := st.Write(it, store.StateIntake); err != nil {
		t.Fatalf("seed intake: %v", err)
	}
}

func TestClaimSuccess(t *testing.T) {
	st, bus := newFixture(t)
	id := workitem.NewID("email", time.Now(), "greeting")
	seedIntake(t, st, id)

	var claimed []event.Event
	bus.Subscribe("item.claimed", func(e event.Event) { claimed = append(claimed, e) })

	m := newManager(st, bus, "local")
	ok, err := m.Claim(id)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !ok {
		t.Fatal("Claim returned false on uncontested item")
	}

	held, err := m.Held()
	if err != nil {
		t.Fatalf("Held: %v", err)
	}
	if len(held) != 1 || held[0] != id {
		t.Errorf("held = %v", held)
	}
	if len(claimed) != 1 {
		t.Errorf("claim events = %d, want 1", len(claimed))
	}

	// Audit trail records the transition.
	entries, err := audit.ReadItem(st.AuditDir(), id)
	if err != nil {
		t.Fatalf("ReadItem: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != audit.ActionClaimed {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestClaimRefusesOtherAgentsItem(t *testing.T) {
	st, bus := newFixture(t)
	id := workitem.NewID("email", time.Now(), "taken")
	seedIntake(t, st, id)

	cloud := newManager(st, bus, "cloud")
	if ok, err := cloud.Claim(id); err != nil || !ok {
		t.Fatalf("cloud claim: ok=%v err=%v", ok, err)
	}

	local := newManager(st, bus, "local")
	ok, err := local.Claim(id)
	if err != nil {
		t.Fatalf("local claim errored: %v", err)
	}
	if ok {
		t.Fatal("two agents both claimed the same identity")
	}
}

func TestClaimRaceExactlyOneWinner(t *testing.T) {
	st, bus := newFixture(t)
	id := workitem.NewID("email", time.Now(), "contested")
	seedIntake(t, st, id)

	published := 0
	var pubMu sync.Mutex
	bus.Subscribe("item.claimed", func(event.Event) {
		pubMu.Lock()
		published++
		pubMu.Unlock()
	})

	managers := []*Manager{
		newManager(st, bus, "cloud"),
		newManager(st, bus, "local"),
	}

	wins := make([]bool, len(managers))
	errs := make([]error, len(managers))

	var start, done sync.WaitGroup
	start.Add(1)
	for i, m := range managers {
		done.Add(1)
		go func(i int, m *Manager) {
			defer done.Done()
			start.Wait()
			wins[i], errs[i] = m.Claim(id)
		}(i, m)
	}
	start.Done()
	done.Wait()

	winners := 0
	for i := range managers {
		if errs[i] != nil {
			t.Fatalf("manager %d error: %v", i, errs[i])
		}
		if wins[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	// Zero duplication of downstream side effects: one claim event only.
	if published != 1 {
		t.Errorf("claim events = %d, want 1", published)
	}
}

func TestClaimOwnItemTwice(t *testing.T) {
	st, bus := newFixture(t)
	id := workitem.NewID("email", time.Now(), "twice")
	seedIntake(t, st, id)

	m := newManager(st, bus, "local")
	if ok, err := m.Claim(id); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	// The precondition is "caller holds no existing claim for this
	// identity"; violating it is a real error, not a race.
	if _, err := m.Claim(id); !errors.Is(err, errors.ErrAlreadyClaimed) {
		t.Errorf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestReleaseMovesAndAudits(t *testing.T) {
	st, bus := newFixture(t)
	id := workitem.NewID("email", time.Now(), "outbound")
	seedIntake(t, st, id)

	m := newManager(st, bus, "local")
	if ok, err := m.Claim(id); err != nil || !ok {
		t.Fatalf("Claim: ok=%v err=%v", ok, err)
	}
	if err := m.Release(id, store.StateApproved); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if !st.Exists(id, store.StateApproved) {
		t.Error("item not in approved after release")
	}

	entries, err := audit.ReadItem(st.AuditDir(), id)
	if err != nil {
		t.Fatalf("ReadItem: %v", err)
	}
	if len(entries) != 2 || entries[1].Action != audit.ActionReleased {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestNextReturnsOldest(t *testing.T) {
	st, bus := newFixture(t)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	older := workitem.NewID("email", base, "older")
	newer := workitem.NewID("email", base.Add(time.Minute), "newer")
	seedIntake(t, st, newer)
	seedIntake(t, st, older)

	m := newManager(st, bus, "local")
	id, ok, err := m.Next(nil)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok || id != older {
		t.Errorf("Next = %q, %v; want %q", id, ok, older)
	}
}

func TestNextEmptyIntake(t *testing.T) {
	st, bus := newFixture(t)
	m := newManager(st, bus, "local")

	if _, ok, err := m.Next(nil); err != nil || ok {
		t.Errorf("Next on empty intake = ok=%v err=%v", ok, err)
	}
}

func TestNextSkipsListedIdentities(t *testing.T) {
	st, bus := newFixture(t)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	first := workitem.NewID("email", base, "first")
	second := workitem.NewID("email", base.Add(time.Minute), "second")
	seedIntake(t, st, first)
	seedIntake(t, st, second)

	m := newManager(st, bus, "local")
	id, ok, err := m.Next(map[string]bool{first: true})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok || id != second {
		t.Errorf("Next = %q, %v; want %q", id, ok, second)
	}

	if _, ok, _ := m.Next(map[string]bool{first: true, second: true}); ok {
		t.Error("Next returned an identity that should be skipped")
	}
}
