// Package room manages project-scoped broadcast groups: membership,
// sender-excluded fan-out, and cleanup when a room empties.
package room

import (
	"sync"

	"github.com/gofiber/contrib/websocket"

	"canvas-backend/internal/canvas"
	"canvas-backend/internal/logx"
)

// Conn is the write side of a participant's socket.
// *websocket.Conn satisfies it; tests substitute a recorder.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// Member is one admitted connection inside a room.
type Member struct {
	ConnID   string
	UserID   int64
	Nickname string

	conn    Conn
	writeMu sync.Mutex // one frame at a time per socket
}

// NewMember builds a member record around a live connection.
func NewMember(connID string, userID int64, nickname string, conn Conn) *Member {
	return &Member{ConnID: connID, UserID: userID, Nickname: nickname, conn: conn}
}

// Send writes a text frame to the member's socket.
func (m *Member) Send(data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// Room is a single broadcast group. State is the room-authoritative
// element store, initialized once from the document store.
type Room struct {
	ID        string
	ProjectID int64
	State     *canvas.Store

	mu       sync.RWMutex
	members  map[string]*Member
	loadOnce sync.Once
}

// InitState runs fn at most once to seed the room's live state.
func (r *Room) InitState(fn func() *canvas.Store) {
	r.loadOnce.Do(func() {
		r.State = fn()
	})
}

// Members returns the current members, excluding the given connection.
func (r *Room) Members(excludeConnID string) []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.members))
	for id, m := range r.members {
		if id == excludeConnID {
			continue
		}
		out = append(out, m)
	}
	return out
}

// MemberIDs returns the live connection-id set, used to prune presence.
func (r *Room) MemberIDs() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{}, len(r.members))
	for id := range r.members {
		out[id] = struct{}{}
	}
	return out
}

// Size reports the member count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Router tracks all rooms and which rooms each connection belongs to.
type Router struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	memberships map[string]map[string]struct{} // connID -> roomIDs
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		rooms:       make(map[string]*Room),
		memberships: make(map[string]map[string]struct{}),
	}
}

// GetOrCreate returns the room, creating it on first join.
func (rt *Router) GetOrCreate(roomID string, projectID int64) *Room {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if r, ok := rt.rooms[roomID]; ok {
		return r
	}
	r := &Room{
		ID:        roomID,
		ProjectID: projectID,
		members:   make(map[string]*Member),
	}
	rt.rooms[roomID] = r
	logx.L().Infow("room created", "room", roomID, "project", projectID)
	return r
}

// Room looks up an existing room.
func (rt *Router) Room(roomID string) (*Room, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	r, ok := rt.rooms[roomID]
	return r, ok
}

// Join admits a member into a room. ok reports admission: false means
// the room was reclaimed under the joiner and nothing was mutated.
// Rejoining with the same connection id replaces the member record
// without duplicating membership; first reports a first join.
func (rt *Router) Join(roomID string, m *Member) (first, ok bool) {
	rt.mu.Lock()
	r, exists := rt.rooms[roomID]
	if !exists {
		rt.mu.Unlock()
		return false, false
	}
	if rt.memberships[m.ConnID] == nil {
		rt.memberships[m.ConnID] = make(map[string]struct{})
	}
	_, already := rt.memberships[m.ConnID][roomID]
	rt.memberships[m.ConnID][roomID] = struct{}{}
	rt.mu.Unlock()

	r.mu.Lock()
	r.members[m.ConnID] = m
	total := len(r.members)
	r.mu.Unlock()

	logx.L().Infow("member joined", "room", roomID, "conn", m.ConnID, "members", total, "rejoin", already)
	return !already, true
}

// IsMember reports whether the connection has been admitted into the
// room. Room-scoped events from anyone else are rejected upstream.
func (rt *Router) IsMember(roomID, connID string) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	_, ok := rt.memberships[connID][roomID]
	return ok
}

// Leave removes the connection from the room. A leave from a connection
// that is not a member is a no-op and can never reclaim the room. If
// the room empties it is reclaimed; the return value reports that so
// callers can flush state.
func (rt *Router) Leave(roomID, connID string) (removedRoom bool) {
	rt.mu.Lock()
	r, ok := rt.rooms[roomID]
	if !ok {
		rt.mu.Unlock()
		return false
	}
	set := rt.memberships[connID]
	if _, member := set[roomID]; !member {
		rt.mu.Unlock()
		return false
	}
	delete(set, roomID)
	if len(set) == 0 {
		delete(rt.memberships, connID)
	}

	r.mu.Lock()
	delete(r.members, connID)
	empty := len(r.members) == 0
	r.mu.Unlock()

	if empty {
		delete(rt.rooms, roomID)
	}
	rt.mu.Unlock()

	logx.L().Infow("member left", "room", roomID, "conn", connID, "roomRemoved", empty)
	return empty
}

// RoomsOf returns the rooms a connection currently belongs to.
func (rt *Router) RoomsOf(connID string) []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]string, 0, len(rt.memberships[connID]))
	for roomID := range rt.memberships[connID] {
		out = append(out, roomID)
	}
	return out
}

// Broadcast fans a frame out to every room member except the excluded
// connection. A missing room is a silent drop: everyone already left,
// there is nobody to deliver to.
func (rt *Router) Broadcast(roomID string, data []byte, excludeConnID string) {
	rt.mu.RLock()
	r, ok := rt.rooms[roomID]
	rt.mu.RUnlock()
	if !ok {
		return
	}
	for _, m := range r.Members(excludeConnID) {
		if err := m.Send(data); err != nil {
			logx.L().Warnw("broadcast write failed", "room", roomID, "conn", m.ConnID, "err", err)
		}
	}
}
