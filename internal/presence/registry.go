// Package presence tracks ephemeral per-connection state (cursor,
// identity, selection) per room. It is never authoritative for document
// content and nothing in it is persisted.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Cursor is a live pointer position.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entry is one connection's ephemeral state inside a room.
type Entry struct {
	ConnectionID string    `json:"connectionId"`
	UserID       int64     `json:"userId"`
	Nickname     string    `json:"nickname"`
	Cursor       *Cursor   `json:"cursor,omitempty"`
	SelectedIDs  []string  `json:"selectedIds,omitempty"`
	JoinedAt     time.Time `json:"joinedAt"`
}

func (e Entry) clone() Entry {
	out := e
	if e.Cursor != nil {
		c := *e.Cursor
		out.Cursor = &c
	}
	if e.SelectedIDs != nil {
		out.SelectedIDs = append([]string(nil), e.SelectedIDs...)
	}
	return out
}

// Registry is an explicit presence object constructed with the server.
// Room entries are created on demand and reclaimed when the last
// connection leaves. An optional Redis mirror makes entries visible to
// other instances; mirror failures degrade to memory-only.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Entry
	mirror *Mirror
}

// NewRegistry creates an empty registry. mirror may be nil.
func NewRegistry(mirror *Mirror) *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]*Entry),
		mirror: mirror,
	}
}

// Upsert inserts or replaces the entry for a connection.
func (r *Registry) Upsert(roomID string, e Entry) {
	if e.JoinedAt.IsZero() {
		e.JoinedAt = time.Now()
	}
	r.mu.Lock()
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*Entry)
	}
	stored := e.clone()
	r.rooms[roomID][e.ConnectionID] = &stored
	r.mu.Unlock()

	if r.mirror != nil {
		r.mirror.setAsync(roomID, e)
	}
}

// UpdateCursor records a cursor move. High frequency: O(1), no
// persistence, no mirror write.
func (r *Registry) UpdateCursor(roomID, connID string, x, y float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[roomID][connID]
	if !ok {
		return false
	}
	e.Cursor = &Cursor{X: x, Y: y}
	return true
}

// UpdateSelection records a connection's selected-id set.
func (r *Registry) UpdateSelection(roomID, connID string, ids []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[roomID][connID]
	if !ok {
		return false
	}
	e.SelectedIDs = append([]string(nil), ids...)
	return true
}

// Get returns a copy of one entry.
func (r *Registry) Get(roomID, connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[roomID][connID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Remove drops a connection's entry on leave or disconnect.
func (r *Registry) Remove(roomID, connID string) {
	r.mu.Lock()
	if room, ok := r.rooms[roomID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
	r.mu.Unlock()

	if r.mirror != nil {
		r.mirror.removeAsync(roomID, connID)
	}
}

// Snapshot answers "who else is here": all entries in the room except
// the given connection, ordered by join time.
func (r *Registry) Snapshot(roomID, excludeConnID string) []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.rooms[roomID]))
	for connID, e := range r.rooms[roomID] {
		if connID == excludeConnID {
			continue
		}
		out = append(out, e.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Prune removes every entry whose connection is not in the live set.
// Presence must never reference a departed connection.
func (r *Registry) Prune(roomID string, live map[string]struct{}) {
	var stale []string
	r.mu.Lock()
	for connID := range r.rooms[roomID] {
		if _, ok := live[connID]; !ok {
			stale = append(stale, connID)
			delete(r.rooms[roomID], connID)
		}
	}
	if len(r.rooms[roomID]) == 0 {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()

	if r.mirror != nil {
		for _, connID := range stale {
			r.mirror.removeAsync(roomID, connID)
		}
	}
}
