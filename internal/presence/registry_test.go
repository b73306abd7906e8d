package presence

import (
	"reflect"
	"testing"
	"time"
)

func entry(connID string, joined time.Time) Entry {
	return Entry{
		ConnectionID: connID,
		UserID:       1,
		Nickname:     "user-" + connID,
		JoinedAt:     joined,
	}
}

func TestUpsertReplacesEntry(t *testing.T) {
	r := NewRegistry(nil)
	now := time.Now()

	r.Upsert("room-1", entry("c1", now))
	e := entry("c1", now)
	e.Nickname = "renamed"
	r.Upsert("room-1", e)

	got, ok := r.Get("room-1", "c1")
	if !ok || got.Nickname != "renamed" {
		t.Fatalf("upsert did not replace: %+v ok=%v", got, ok)
	}
	if len(r.Snapshot("room-1", "")) != 1 {
		t.Errorf("upsert duplicated the entry")
	}
}

func TestSnapshotExcludesAndOrders(t *testing.T) {
	r := NewRegistry(nil)
	base := time.Now()
	r.Upsert("room-1", entry("late", base.Add(2*time.Second)))
	r.Upsert("room-1", entry("early", base))
	r.Upsert("room-1", entry("mid", base.Add(time.Second)))

	snap := r.Snapshot("room-1", "mid")
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	if snap[0].ConnectionID != "early" || snap[1].ConnectionID != "late" {
		t.Errorf("wrong order: %s, %s", snap[0].ConnectionID, snap[1].ConnectionID)
	}

	if snap := r.Snapshot("empty-room", ""); len(snap) != 0 {
		t.Errorf("unknown room should snapshot empty, got %d", len(snap))
	}
}

func TestCursorAndSelectionUpdates(t *testing.T) {
	r := NewRegistry(nil)
	r.Upsert("room-1", entry("c1", time.Now()))

	if !r.UpdateCursor("room-1", "c1", 120, 45) {
		t.Fatalf("cursor update failed")
	}
	got, _ := r.Get("room-1", "c1")
	if got.Cursor == nil || got.Cursor.X != 120 || got.Cursor.Y != 45 {
		t.Errorf("cursor not recorded: %+v", got.Cursor)
	}

	if !r.UpdateSelection("room-1", "c1", []string{"a", "b"}) {
		t.Fatalf("selection update failed")
	}
	got, _ = r.Get("room-1", "c1")
	if !reflect.DeepEqual(got.SelectedIDs, []string{"a", "b"}) {
		t.Errorf("selection not recorded: %v", got.SelectedIDs)
	}

	if r.UpdateCursor("room-1", "ghost", 0, 0) {
		t.Errorf("cursor update for unknown connection should fail")
	}
	if r.UpdateSelection("ghost-room", "c1", nil) {
		t.Errorf("selection update for unknown room should fail")
	}
}

func TestRemoveReclaimsEmptyRoom(t *testing.T) {
	r := NewRegistry(nil)
	r.Upsert("room-1", entry("c1", time.Now()))
	r.Remove("room-1", "c1")

	if _, ok := r.Get("room-1", "c1"); ok {
		t.Fatalf("entry survived remove")
	}
	r.mu.RLock()
	_, roomAlive := r.rooms["room-1"]
	r.mu.RUnlock()
	if roomAlive {
		t.Errorf("emptied room map not reclaimed")
	}
}

func TestPruneDropsDepartedConnections(t *testing.T) {
	r := NewRegistry(nil)
	now := time.Now()
	r.Upsert("room-1", entry("alive", now))
	r.Upsert("room-1", entry("departed", now))

	r.Prune("room-1", map[string]struct{}{"alive": {}})

	snap := r.Snapshot("room-1", "")
	if len(snap) != 1 || snap[0].ConnectionID != "alive" {
		t.Fatalf("prune left the wrong entries: %+v", snap)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry(nil)
	e := entry("c1", time.Now())
	e.SelectedIDs = []string{"a"}
	r.Upsert("room-1", e)

	got, _ := r.Get("room-1", "c1")
	got.SelectedIDs[0] = "mutated"

	fresh, _ := r.Get("room-1", "c1")
	if fresh.SelectedIDs[0] != "a" {
		t.Errorf("caller mutation leaked into the registry")
	}
}
