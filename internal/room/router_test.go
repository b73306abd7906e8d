package room

import (
	"sync"
	"testing"

	"canvas-backend/internal/canvas"
)

// recorder is a Conn that captures written frames.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recorder) WriteMessage(_ int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]byte(nil), data...)
	r.frames = append(r.frames, cp)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func join(t *testing.T, rt *Router, roomID, connID string) (*Member, *recorder) {
	t.Helper()
	rec := &recorder{}
	m := NewMember(connID, 0, connID, rec)
	rt.GetOrCreate(roomID, 1)
	rt.Join(roomID, m)
	return m, rec
}

func TestJoinIsIdempotent(t *testing.T) {
	rt := NewRouter()
	rec := &recorder{}
	rt.GetOrCreate("room-1", 1)

	first, ok := rt.Join("room-1", NewMember("c1", 1, "alice", rec))
	if !ok || !first {
		t.Fatalf("first join should admit with first=true, got first=%v ok=%v", first, ok)
	}
	first, ok = rt.Join("room-1", NewMember("c1", 1, "alice-renamed", rec))
	if !ok || first {
		t.Fatalf("rejoin should admit with first=false, got first=%v ok=%v", first, ok)
	}

	r, _ := rt.Room("room-1")
	if r.Size() != 1 {
		t.Fatalf("rejoin duplicated membership, size = %d", r.Size())
	}
	// rejoin replaces the member record
	if members := r.Members(""); members[0].Nickname != "alice-renamed" {
		t.Errorf("rejoin did not replace the member record: %s", members[0].Nickname)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	rt := NewRouter()
	if _, ok := rt.Join("ghost", NewMember("c1", 1, "a", &recorder{})); ok {
		t.Fatalf("join of a non-created room should not admit")
	}
	if rooms := rt.RoomsOf("c1"); len(rooms) != 0 {
		t.Errorf("membership leaked for a failed join: %v", rooms)
	}
	if rt.IsMember("ghost", "c1") {
		t.Errorf("failed join granted membership")
	}
}

func TestLeaveByNonMemberIsNoOp(t *testing.T) {
	rt := NewRouter()
	join(t, rt, "room-1", "c1")

	if removed := rt.Leave("room-1", "stranger"); removed {
		t.Fatalf("a stranger's leave reclaimed the room")
	}
	r, ok := rt.Room("room-1")
	if !ok || r.Size() != 1 {
		t.Fatalf("stranger's leave disturbed the room: ok=%v size=%d", ok, r.Size())
	}
	if removed := rt.Leave("nowhere", "c1"); removed {
		t.Errorf("leave of an unknown room reported reclaim")
	}
	if !rt.IsMember("room-1", "c1") {
		t.Errorf("member lost membership to a stranger's leave")
	}
}

func TestEchoSuppression(t *testing.T) {
	rt := NewRouter()
	_, sender := join(t, rt, "room-1", "sender")
	_, peerA := join(t, rt, "room-1", "peer-a")
	_, peerB := join(t, rt, "room-1", "peer-b")

	rt.Broadcast("room-1", []byte(`{"type":"element-added"}`), "sender")

	if sender.count() != 0 {
		t.Errorf("sender received its own broadcast")
	}
	if peerA.count() != 1 || peerB.count() != 1 {
		t.Errorf("peers missed the broadcast: a=%d b=%d", peerA.count(), peerB.count())
	}
}

func TestBroadcastMissingRoomIsSilent(t *testing.T) {
	rt := NewRouter()
	// no panic, no error surface
	rt.Broadcast("nobody-home", []byte("x"), "")
}

func TestLeaveReclaimsEmptyRoom(t *testing.T) {
	rt := NewRouter()
	join(t, rt, "room-1", "c1")
	join(t, rt, "room-1", "c2")

	if removed := rt.Leave("room-1", "c1"); removed {
		t.Fatalf("room with a remaining member must not be reclaimed")
	}
	if removed := rt.Leave("room-1", "c2"); !removed {
		t.Fatalf("emptied room should be reclaimed")
	}
	if _, ok := rt.Room("room-1"); ok {
		t.Errorf("reclaimed room still resolvable")
	}
	if rooms := rt.RoomsOf("c2"); len(rooms) != 0 {
		t.Errorf("membership survived leave: %v", rooms)
	}
}

func TestDisconnectCleansEveryRoom(t *testing.T) {
	rt := NewRouter()
	join(t, rt, "room-1", "c1")
	join(t, rt, "room-2", "c1")
	join(t, rt, "room-2", "c2")

	// transport drop: the handler walks RoomsOf and leaves each
	for _, roomID := range rt.RoomsOf("c1") {
		rt.Leave(roomID, "c1")
	}

	if rooms := rt.RoomsOf("c1"); len(rooms) != 0 {
		t.Fatalf("membership survived disconnect: %v", rooms)
	}
	if _, ok := rt.Room("room-1"); ok {
		t.Errorf("solo room should be reclaimed on disconnect")
	}
	r, ok := rt.Room("room-2")
	if !ok || r.Size() != 1 {
		t.Errorf("shared room lost its remaining member")
	}
	if _, stillThere := r.MemberIDs()["c1"]; stillThere {
		t.Errorf("departed connection still in member set")
	}
}

func TestInitStateRunsOnce(t *testing.T) {
	rt := NewRouter()
	r := rt.GetOrCreate("room-1", 1)

	calls := 0
	seed := func() *canvas.Store {
		calls++
		return canvas.NewStore()
	}
	r.InitState(seed)
	r.InitState(seed)

	if calls != 1 {
		t.Fatalf("state seeded %d times, want 1", calls)
	}
	if r.State == nil {
		t.Fatalf("state not set")
	}
}
