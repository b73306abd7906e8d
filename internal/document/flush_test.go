package document

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"canvas-backend/internal/canvas"
)

// memStore records saves and can be told to fail.
type memStore struct {
	mu    sync.Mutex
	saves int
	last  *Document
	fail  error
}

func (s *memStore) Load(_ context.Context, _ int64) (*Document, error) {
	return &Document{Elements: []canvas.Element{}, Settings: canvas.DefaultSettings()}, nil
}

func (s *memStore) Save(_ context.Context, _ int64, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.saves++
	s.last = doc
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func snapshotOf(doc *Document) func() *Document {
	return func() *Document { return doc }
}

func TestMarkDirtyCoalescesBursts(t *testing.T) {
	store := &memStore{}
	f := NewFlusher(store, 30*time.Millisecond)
	f.Register(1, snapshotOf(sampleDoc()))

	// a burst of mutations inside one quiet window
	for i := 0; i < 10; i++ {
		f.MarkDirty(1)
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := store.saveCount(); got != 1 {
		t.Fatalf("expected 1 coalesced save, got %d", got)
	}
}

func TestMarkDirtyUnregisteredProject(t *testing.T) {
	f := NewFlusher(&memStore{}, 10*time.Millisecond)
	// no registration: nothing to snapshot, nothing to save
	f.MarkDirty(42)
	time.Sleep(50 * time.Millisecond)
}

func TestFlushNowBypassesDebounce(t *testing.T) {
	store := &memStore{}
	f := NewFlusher(store, time.Hour)
	doc := sampleDoc()
	f.Register(7, snapshotOf(doc))

	f.MarkDirty(7)
	if err := f.FlushNow(context.Background(), 7); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if store.saveCount() != 1 {
		t.Fatalf("expected immediate save, got %d", store.saveCount())
	}
	if len(store.last.Elements) != len(doc.Elements) {
		t.Errorf("saved snapshot does not match live state")
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	store := &memStore{}
	f := NewFlusher(store, time.Hour)

	first := sampleDoc()
	f.Register(1, snapshotOf(first))
	f.Register(1, snapshotOf(&Document{Settings: canvas.DefaultSettings()}))

	f.FlushNow(context.Background(), 1)
	if len(store.last.Elements) != len(first.Elements) {
		t.Errorf("re-register replaced the original snapshot provider")
	}
}

func TestSaveFailureDoesNotPanicOrRetry(t *testing.T) {
	store := &memStore{fail: errors.New("disk on fire")}
	f := NewFlusher(store, 10*time.Millisecond)
	f.Register(1, snapshotOf(sampleDoc()))

	f.MarkDirty(1)
	time.Sleep(50 * time.Millisecond)

	// failure is logged and dropped; later saves still work
	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()
	if err := f.FlushNow(context.Background(), 1); err != nil {
		t.Fatalf("flush after recovery failed: %v", err)
	}
	if store.saveCount() != 1 {
		t.Errorf("expected exactly one successful save, got %d", store.saveCount())
	}
}

func TestForgetStopsFlushes(t *testing.T) {
	store := &memStore{}
	f := NewFlusher(store, time.Hour)
	f.Register(1, snapshotOf(sampleDoc()))
	f.Forget(1)

	if err := f.FlushNow(context.Background(), 1); err != nil {
		t.Fatalf("flush of forgotten project errored: %v", err)
	}
	if store.saveCount() != 0 {
		t.Errorf("forgotten project was saved")
	}
}

func TestFlushAll(t *testing.T) {
	store := &memStore{}
	f := NewFlusher(store, time.Hour)
	f.Register(1, snapshotOf(sampleDoc()))
	f.Register(2, snapshotOf(sampleDoc()))

	f.FlushAll(context.Background())
	if store.saveCount() != 2 {
		t.Errorf("expected 2 saves, got %d", store.saveCount())
	}
}
