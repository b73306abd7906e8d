package canvas

import (
	"fmt"
	"reflect"
	"testing"
)

func rect(id string) Element {
	return Element{
		ID:      id,
		Type:    TypeRectangle,
		Width:   100,
		Height:  100,
		Opacity: 1,
		Visible: true,
	}
}

func rectAt(id string, z int) Element {
	el := rect(id)
	el.ZIndex = &z
	return el
}

func TestAddAssignsDefaultZIndex(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rect("a"))
	s.ApplyLocalAdd(rect("b"))
	out := s.ApplyLocalAdd(rect("c"))

	if out.ZIndex == nil || *out.ZIndex != 2 {
		t.Fatalf("expected zIndex 2 for third element, got %v", out.ZIndex)
	}

	first, _ := s.Get("a")
	if first.Z() != 0 {
		t.Errorf("expected zIndex 0 for first element, got %d", first.Z())
	}
}

func TestUpdateAfterDeleteIsNoOp(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rect("x"))
	if !s.ApplyLocalDelete("x") {
		t.Fatalf("delete failed")
	}
	before := s.HistoryLen()

	// late update for the already-deleted element
	el := rect("x")
	el.X = 500
	_, ok := s.ApplyRemoteUpdate(el)
	if ok {
		t.Fatalf("update of deleted element should be a no-op")
	}
	if s.Len() != 0 {
		t.Errorf("deleted element was recreated, len = %d", s.Len())
	}
	if s.HistoryLen() != before {
		t.Errorf("no-op update changed history: %d -> %d", before, s.HistoryLen())
	}
}

func TestLastWriterWinsConvergence(t *testing.T) {
	p1 := NewStore()
	p2 := NewStore()

	base := rect("X")
	p1.ApplyLocalAdd(base)
	p2.ApplyRemoteAdd(base)

	v1 := rect("X")
	v1.Fill = "#ff0000"
	v2 := rect("X")
	v2.Fill = "#0000ff"

	// both peers see v1 then v2
	p1.ApplyLocalUpdate(v1)
	p2.ApplyRemoteUpdate(v1)
	p2.ApplyLocalUpdate(v2)
	p1.ApplyRemoteUpdate(v2)

	e1, _ := p1.Get("X")
	e2, _ := p2.Get("X")
	if e1.Fill != "#0000ff" || e2.Fill != "#0000ff" {
		t.Fatalf("peers diverged: p1=%q p2=%q", e1.Fill, e2.Fill)
	}
	if !reflect.DeepEqual(e1, e2) {
		t.Errorf("final element state differs between peers")
	}
}

func TestUndoRedoRestoresExactState(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rect("a"))
	el := rect("b")
	el.X = 42
	el.Points = []float64{1, 2, 3, 4}
	el.Type = TypeFreehand
	s.ApplyLocalAdd(el)

	want := s.Elements()

	if _, ok := s.Undo(); !ok {
		t.Fatalf("undo failed")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 element after undo, got %d", s.Len())
	}
	if _, ok := s.Redo(); !ok {
		t.Fatalf("redo failed")
	}

	if !reflect.DeepEqual(s.Elements(), want) {
		t.Errorf("undo+redo did not restore the exact prior state")
	}
}

func TestUndoRedoAtBounds(t *testing.T) {
	s := NewStore()
	if _, ok := s.Undo(); ok {
		t.Errorf("undo on empty history should be a no-op")
	}
	if _, ok := s.Redo(); ok {
		t.Errorf("redo on empty history should be a no-op")
	}

	s.ApplyLocalAdd(rect("a"))
	s.Undo()
	if _, ok := s.Undo(); ok {
		t.Errorf("undo past the baseline should be a no-op")
	}
	s.Redo()
	if _, ok := s.Redo(); ok {
		t.Errorf("redo past the newest snapshot should be a no-op")
	}
}

func TestHistoryBoundEvictsOldest(t *testing.T) {
	s := NewStore()
	for i := 0; i < 60; i++ {
		s.ApplyLocalAdd(rect(fmt.Sprintf("el-%d", i)))
	}
	if s.HistoryLen() != DefaultHistoryCapacity {
		t.Fatalf("expected history at capacity %d, got %d", DefaultHistoryCapacity, s.HistoryLen())
	}

	// only capacity-1 undo steps remain; the oldest states are gone
	steps := 0
	for {
		if _, ok := s.Undo(); !ok {
			break
		}
		steps++
	}
	if steps != DefaultHistoryCapacity-1 {
		t.Errorf("expected %d undo steps, got %d", DefaultHistoryCapacity-1, steps)
	}
	if s.Len() != 60-(DefaultHistoryCapacity-1) {
		t.Errorf("oldest snapshot should hold %d elements, got %d", 60-(DefaultHistoryCapacity-1), s.Len())
	}
}

func TestRemoteMutationsDoNotTouchHistory(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rect("mine"))
	before := s.HistoryLen()

	s.ApplyRemoteAdd(rect("theirs"))
	upd := rect("theirs")
	upd.X = 10
	s.ApplyRemoteUpdate(upd)
	s.ApplyRemoteDelete("theirs")
	s.ApplyRemoteBulkReplace([]Element{rect("mine")})

	if s.HistoryLen() != before {
		t.Fatalf("remote mutations changed history: %d -> %d", before, s.HistoryLen())
	}

	// a local undo reverts the local add, never the peer's edits
	if _, ok := s.Undo(); !ok {
		t.Fatalf("undo failed")
	}
	if s.Len() != 0 {
		t.Errorf("undo should revert only the local add, len = %d", s.Len())
	}
}

func TestNewMutationTruncatesRedo(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rect("a"))
	s.ApplyLocalAdd(rect("b"))
	s.Undo()
	s.ApplyLocalAdd(rect("c"))

	if _, ok := s.Redo(); ok {
		t.Fatalf("redo after a fresh mutation should be a no-op")
	}
	if _, ok := s.Get("b"); ok {
		t.Errorf("truncated branch element survived")
	}
	if _, ok := s.Get("c"); !ok {
		t.Errorf("new branch element missing")
	}
}

func TestBringToFrontUsesMaxPlusOne(t *testing.T) {
	s := NewStore()
	for i := 1; i <= 5; i++ {
		s.ApplyLocalAdd(rectAt(fmt.Sprintf("bg-%d", i), i))
	}
	s.ApplyLocalAdd(rectAt("r1", 0))

	out, ok := s.BringToFront("r1")
	if !ok {
		t.Fatalf("bringToFront failed")
	}
	if out.Z() != 6 {
		t.Errorf("expected zIndex 6, got %d", out.Z())
	}

	out, ok = s.SendToBack("r1")
	if !ok {
		t.Fatalf("sendToBack failed")
	}
	if out.Z() != 0 {
		t.Errorf("expected zIndex 0 (min 1 - 1), got %d", out.Z())
	}

	if _, ok := s.BringToFront("missing"); ok {
		t.Errorf("bringToFront on unknown id should fail")
	}
}

func TestDeleteSelected(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rect("a"))
	s.ApplyLocalAdd(rect("b"))
	s.ApplyLocalAdd(rect("c"))
	before := s.HistoryLen()

	s.Select([]string{"c", "a"})
	removed := s.DeleteSelected()

	if !reflect.DeepEqual(removed, []string{"a", "c"}) {
		t.Fatalf("expected [a c], got %v", removed)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 survivor, got %d", s.Len())
	}
	if len(s.Selection()) != 0 {
		t.Errorf("selection not pruned: %v", s.Selection())
	}
	if s.HistoryLen() != before+1 {
		t.Errorf("deleteSelected should be one history step, history %d -> %d", before, s.HistoryLen())
	}

	if removed := s.DeleteSelected(); removed != nil {
		t.Errorf("empty selection should delete nothing, got %v", removed)
	}
}

func TestBulkReplaceIsOneHistoryStep(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rect("old"))
	s.Select([]string{"old"})
	before := s.HistoryLen()

	out := s.ApplyLocalBulkReplace([]Element{rect("n1"), rect("n2"), rect("n3")})

	if len(out) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(out))
	}
	if s.HistoryLen() != before+1 {
		t.Errorf("bulk replace should be one history step, history %d -> %d", before, s.HistoryLen())
	}
	if len(s.Selection()) != 0 {
		t.Errorf("selection should drop ids missing from the replacement")
	}
	for i, el := range out {
		if el.Z() != i {
			t.Errorf("element %d: expected assigned zIndex %d, got %d", i, i, el.Z())
		}
	}
}

func TestDuplicateAddResolvesToIncoming(t *testing.T) {
	s := NewStore()
	first := rect("r1")
	first.Fill = "#111111"
	second := rect("r1")
	second.Fill = "#222222"

	s.ApplyLocalAdd(first)
	s.ApplyRemoteAdd(second)

	if s.Len() != 1 {
		t.Fatalf("duplicate id produced %d elements", s.Len())
	}
	got, _ := s.Get("r1")
	if got.Fill != "#222222" {
		t.Errorf("expected incoming version to win, got fill %q", got.Fill)
	}
}

func TestLoadDocumentResetsHistory(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rect("stale"))

	s.LoadDocument([]Element{rectAt("loaded", 3)}, DefaultSettings())

	if _, ok := s.Undo(); ok {
		t.Errorf("history should be reset around the loaded baseline")
	}
	got, ok := s.Get("loaded")
	if !ok || got.Z() != 3 {
		t.Errorf("loaded element missing or wrong zIndex: %v %v", got.ZIndex, ok)
	}
}

func TestElementsByZPaintOrder(t *testing.T) {
	s := NewStore()
	s.ApplyLocalAdd(rectAt("top", 9))
	s.ApplyLocalAdd(rectAt("bottom", 1))
	s.ApplyLocalAdd(rectAt("tie", 1))

	ordered := s.ElementsByZ()
	want := []string{"bottom", "tie", "top"}
	for i, id := range want {
		if ordered[i].ID != id {
			t.Fatalf("paint order mismatch at %d: expected %s, got %s", i, id, ordered[i].ID)
		}
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	el := rect("a")
	el.Points = []float64{0, 0, 10, 10}
	el.Type = TypeFreehand
	s.ApplyLocalAdd(el)

	out := s.Elements()
	out[0].Points[0] = 999
	out[0].ID = "mutated"

	got, _ := s.Get("a")
	if got.Points[0] != 0 {
		t.Errorf("caller mutation leaked into the store")
	}
}
