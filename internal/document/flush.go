package document

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"

	"canvas-backend/internal/logx"
)

const saveTimeout = 10 * time.Second

// Flusher schedules debounced write-behind saves. Each mutation marks
// the project dirty; after a quiet period the current snapshot is
// persisted. Saves for one project are serialized, and a failed save is
// logged and dropped — degraded durability never stalls live editing.
type Flusher struct {
	store  Store
	window time.Duration

	mu       sync.Mutex
	projects map[int64]*projectFlusher
}

type projectFlusher struct {
	debounced func(func())
	snapshot  func() *Document
	flushMu   sync.Mutex // no interleaved saves per project
}

// NewFlusher creates a flusher with the given quiet-period window.
func NewFlusher(store Store, window time.Duration) *Flusher {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Flusher{
		store:    store,
		window:   window,
		projects: make(map[int64]*projectFlusher),
	}
}

// Register binds a project to its live-state snapshot provider.
// Idempotent; a rejoining room keeps the existing scheduler.
func (f *Flusher) Register(projectID int64, snapshot func() *Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; ok {
		return
	}
	f.projects[projectID] = &projectFlusher{
		debounced: debounce.New(f.window),
		snapshot:  snapshot,
	}
}

// MarkDirty notes a document mutation. The actual save runs after the
// debounce window passes without further mutations.
func (f *Flusher) MarkDirty(projectID int64) {
	f.mu.Lock()
	pf, ok := f.projects[projectID]
	f.mu.Unlock()
	if !ok {
		return
	}
	pf.debounced(func() {
		f.flush(projectID, pf)
	})
}

// FlushNow persists the current snapshot immediately, bypassing the
// debounce window. Used when a room empties and on shutdown.
func (f *Flusher) FlushNow(ctx context.Context, projectID int64) error {
	f.mu.Lock()
	pf, ok := f.projects[projectID]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	pf.flushMu.Lock()
	defer pf.flushMu.Unlock()
	return f.store.Save(ctx, projectID, pf.snapshot())
}

// Forget unregisters a project once its room has been reclaimed.
func (f *Flusher) Forget(projectID int64) {
	f.mu.Lock()
	delete(f.projects, projectID)
	f.mu.Unlock()
}

// FlushAll persists every registered project, used on shutdown.
func (f *Flusher) FlushAll(ctx context.Context) {
	f.mu.Lock()
	ids := make([]int64, 0, len(f.projects))
	for id := range f.projects {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	for _, id := range ids {
		if err := f.FlushNow(ctx, id); err != nil {
			logx.L().Errorw("document flush failed", "project", id, "err", err)
		}
	}
}

func (f *Flusher) flush(projectID int64, pf *projectFlusher) {
	pf.flushMu.Lock()
	defer pf.flushMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := f.store.Save(ctx, projectID, pf.snapshot()); err != nil {
		// durability degradation, not a live-editing outage
		logx.L().Errorw("document flush failed", "project", projectID, "err", err)
	}
}
