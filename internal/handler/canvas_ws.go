package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"canvas-backend/internal/auth"
	"canvas-backend/internal/canvas"
	"canvas-backend/internal/document"
	"canvas-backend/internal/logx"
	"canvas-backend/internal/presence"
	"canvas-backend/internal/protocol"
	"canvas-backend/internal/room"
)

const loadTimeout = 5 * time.Second

// CanvasWSHandler runs the per-connection event loop of the sync
// protocol: admission into rooms, mutation fan-out with echo
// suppression, presence updates, and cleanup on disconnect.
type CanvasWSHandler struct {
	router   *room.Router
	registry *presence.Registry
	docs     document.Store
	flusher  *document.Flusher
	jwt      *auth.JWTManager
	history  int
}

// NewCanvasWSHandler wires the sync core together.
func NewCanvasWSHandler(router *room.Router, registry *presence.Registry, docs document.Store, flusher *document.Flusher, jwt *auth.JWTManager, historyCapacity int) *CanvasWSHandler {
	return &CanvasWSHandler{
		router:   router,
		registry: registry,
		docs:     docs,
		flusher:  flusher,
		jwt:      jwt,
		history:  historyCapacity,
	}
}

// HandleWebSocket is the connection loop. One goroutine per socket;
// every frame is parsed at the boundary and a bad frame never takes the
// loop down.
func (h *CanvasWSHandler) HandleWebSocket(c *websocket.Conn) {
	connID := uuid.NewString()
	// one Member per socket: the same write mutex serializes direct
	// sends and room fan-outs
	st := &connState{connID: connID, member: room.NewMember(connID, 0, "", c)}

	logx.L().Infow("canvas socket connected", "conn", connID)

	defer func() {
		h.cleanup(st)
		c.Close()
		logx.L().Infow("canvas socket closed", "conn", connID)
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		env, err := protocol.Decode(msgBytes)
		if err != nil {
			h.sendError(st, protocol.CodeBadPayload, err.Error())
			continue
		}
		h.dispatch(st, env)
	}
}

// connState is what the handler knows about one socket.
type connState struct {
	connID   string
	member   *room.Member
	userID   int64
	nickname string
}

func (h *CanvasWSHandler) dispatch(m *connState, env *protocol.Envelope) {
	switch env.Type {
	case protocol.EventJoinRoom:
		h.handleJoin(m, env)
	case protocol.EventLeaveRoom:
		var p protocol.LeaveRoomPayload
		if env.Bind(&p) != nil || p.RoomID == "" {
			h.sendError(m, protocol.CodeBadPayload, "leave-room: "+protocol.ErrMissingRoom.Error())
			return
		}
		h.leaveRoom(m, p.RoomID)
	case protocol.EventElementAdd:
		h.handleElementAdd(m, env)
	case protocol.EventElementUpdate:
		h.handleElementUpdate(m, env)
	case protocol.EventElementDelete:
		h.handleElementDelete(m, env)
	case protocol.EventElementsBulkReplace:
		h.handleBulkReplace(m, env)
	case protocol.EventCursorMove:
		h.handleCursorMove(m, env)
	case protocol.EventSelectionChange:
		h.handleSelectionChange(m, env)
	case protocol.EventCanvasSettingsUpdate:
		h.handleSettingsUpdate(m, env)
	default:
		h.sendError(m, protocol.CodeBadPayload, protocol.ErrUnknownEvent.Error()+": "+env.Type)
	}
}

// handleJoin validates the credential before any room-state mutation:
// reject fast, never admit then evict.
func (h *CanvasWSHandler) handleJoin(m *connState, env *protocol.Envelope) {
	var p protocol.JoinRoomPayload
	if env.Bind(&p) != nil || p.RoomID == "" {
		h.sendError(m, protocol.CodeBadPayload, "join-room: "+protocol.ErrMissingRoom.Error())
		return
	}

	claims, err := h.jwt.ValidateAccessToken(p.AuthToken)
	if err != nil {
		h.sendError(m, protocol.CodeUnauthorized, "join rejected: invalid credential")
		return
	}

	projectID, err := parseProjectID(p.RoomID)
	if err != nil {
		h.sendError(m, protocol.CodeBadPayload, "join-room: unrecognized room id")
		return
	}

	m.userID = claims.UserID
	m.nickname = claims.Nickname
	m.member.UserID = claims.UserID
	m.member.Nickname = claims.Nickname

	rm := h.router.GetOrCreate(p.RoomID, projectID)
	rm.InitState(func() *canvas.Store {
		return h.loadState(projectID)
	})

	if _, admitted := h.router.Join(p.RoomID, m.member); !admitted {
		// the room was reclaimed between lookup and admission; tell the
		// joiner instead of pretending it is in
		h.sendError(m, protocol.CodeRoomClosed, "join-room: room was closed, retry")
		return
	}

	entry := presence.Entry{
		ConnectionID: m.connID,
		UserID:       m.userID,
		Nickname:     m.nickname,
	}
	h.registry.Upsert(p.RoomID, entry)

	h.broadcast(p.RoomID, protocol.EventParticipantJoined, protocol.ParticipantJoinedPayload{
		RoomID:      p.RoomID,
		Participant: toParticipant(entry),
	}, m.connID)

	// the joiner gets the member list (itself excluded) and the full
	// canvas snapshot
	others := h.registry.Snapshot(p.RoomID, m.connID)
	participants := make([]protocol.Participant, 0, len(others))
	for _, e := range others {
		participants = append(participants, toParticipant(e))
	}
	h.sendEvent(m.member, protocol.EventActiveParticipants, protocol.ActiveParticipantsPayload{
		RoomID:       p.RoomID,
		Participants: participants,
	})
	h.sendEvent(m.member, protocol.EventCanvasState, protocol.CanvasStatePayload{
		RoomID:   p.RoomID,
		Elements: rm.State.Elements(),
		Settings: rm.State.Settings(),
	})
}

// loadState builds the room-authoritative store from the document
// store. A load failure opens an empty canvas rather than refusing the
// session.
func (h *CanvasWSHandler) loadState(projectID int64) *canvas.Store {
	store := canvas.NewStore(canvas.WithHistoryCapacity(h.history))

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	doc, err := h.docs.Load(ctx, projectID)
	if err != nil {
		logx.L().Errorw("document load failed, starting empty", "project", projectID, "err", err)
	} else {
		store.LoadDocument(doc.Elements, doc.Settings)
	}

	h.flusher.Register(projectID, func() *document.Document {
		return &document.Document{Elements: store.Elements(), Settings: store.Settings()}
	})
	return store
}

func (h *CanvasWSHandler) leaveRoom(m *connState, roomID string) {
	// a non-member's leave must never touch the room, let alone
	// reclaim it
	if !h.router.IsMember(roomID, m.connID) {
		return
	}
	rm, ok := h.router.Room(roomID)
	if !ok {
		return
	}
	projectID := rm.ProjectID

	// capture the leaver's last known presence before tearing it down
	entry, hadPresence := h.registry.Get(roomID, m.connID)
	if !hadPresence {
		entry = presence.Entry{ConnectionID: m.connID, UserID: m.userID, Nickname: m.nickname}
	}

	removedRoom := h.router.Leave(roomID, m.connID)
	h.registry.Remove(roomID, m.connID)

	h.broadcast(roomID, protocol.EventParticipantLeft, protocol.ParticipantLeftPayload{
		RoomID:      roomID,
		Participant: toParticipant(entry),
	}, m.connID)

	if removedRoom {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		if err := h.flusher.FlushNow(ctx, projectID); err != nil {
			logx.L().Errorw("final document flush failed", "project", projectID, "err", err)
		}
		h.flusher.Forget(projectID)
		return
	}
	h.registry.Prune(roomID, rm.MemberIDs())
}

// cleanup treats a transport-level drop identically to an explicit
// leave for every room the connection belonged to.
func (h *CanvasWSHandler) cleanup(m *connState) {
	for _, roomID := range h.router.RoomsOf(m.connID) {
		h.leaveRoom(m, roomID)
	}
}

// --- element mutations ---

// memberRoom gates every room-scoped mutation: the sender must have
// been admitted into the room via join-room before any of its events
// may touch room state.
func (h *CanvasWSHandler) memberRoom(m *connState, roomID string) (*room.Room, bool) {
	if !h.router.IsMember(roomID, m.connID) {
		h.sendError(m, protocol.CodeUnauthorized, "not a member of "+roomID)
		return nil, false
	}
	rm, ok := h.router.Room(roomID)
	if !ok {
		return nil, false // room already reclaimed: nobody to deliver to
	}
	return rm, true
}

func (h *CanvasWSHandler) handleElementAdd(m *connState, env *protocol.Envelope) {
	var p protocol.ElementPayload
	if env.Bind(&p) != nil || p.RoomID == "" {
		h.sendError(m, protocol.CodeBadPayload, "element-add: "+protocol.ErrMissingRoom.Error())
		return
	}
	if err := p.Element.Validate(); err != nil {
		h.sendError(m, protocol.CodeBadPayload, "element-add: "+err.Error())
		return
	}
	rm, ok := h.memberRoom(m, p.RoomID)
	if !ok {
		return
	}
	el := rm.State.ApplyRemoteAdd(p.Element)
	h.broadcast(p.RoomID, protocol.EventElementAdded, protocol.ElementBroadcast{
		RoomID:  p.RoomID,
		Element: el,
	}, m.connID)
	h.flusher.MarkDirty(rm.ProjectID)
}

func (h *CanvasWSHandler) handleElementUpdate(m *connState, env *protocol.Envelope) {
	var p protocol.ElementPayload
	if env.Bind(&p) != nil || p.RoomID == "" {
		h.sendError(m, protocol.CodeBadPayload, "element-update: "+protocol.ErrMissingRoom.Error())
		return
	}
	if err := p.Element.Validate(); err != nil {
		h.sendError(m, protocol.CodeBadPayload, "element-update: "+err.Error())
		return
	}
	rm, ok := h.memberRoom(m, p.RoomID)
	if !ok {
		return
	}
	// apply carries the full post-mutation state; an unknown id means a
	// racing delete won, which peers absorb as a no-op too
	el, applied := rm.State.ApplyRemoteUpdate(p.Element)
	if !applied {
		el = p.Element
	}
	h.broadcast(p.RoomID, protocol.EventElementUpdated, protocol.ElementBroadcast{
		RoomID:  p.RoomID,
		Element: el,
	}, m.connID)
	if applied {
		h.flusher.MarkDirty(rm.ProjectID)
	}
}

func (h *CanvasWSHandler) handleElementDelete(m *connState, env *protocol.Envelope) {
	var p protocol.ElementDeletePayload
	if env.Bind(&p) != nil || p.RoomID == "" {
		h.sendError(m, protocol.CodeBadPayload, "element-delete: "+protocol.ErrMissingRoom.Error())
		return
	}
	if p.ElementID == "" {
		h.sendError(m, protocol.CodeBadPayload, "element-delete: "+protocol.ErrMissingTarget.Error())
		return
	}
	rm, ok := h.memberRoom(m, p.RoomID)
	if !ok {
		return
	}
	rm.State.ApplyRemoteDelete(p.ElementID)
	h.broadcast(p.RoomID, protocol.EventElementDeleted, protocol.ElementDeletedBroadcast{
		RoomID:    p.RoomID,
		ElementID: p.ElementID,
	}, m.connID)
	h.flusher.MarkDirty(rm.ProjectID)
}

func (h *CanvasWSHandler) handleBulkReplace(m *connState, env *protocol.Envelope) {
	var p protocol.BulkReplacePayload
	if env.Bind(&p) != nil || p.RoomID == "" {
		h.sendError(m, protocol.CodeBadPayload, "elements-bulk-replace: "+protocol.ErrMissingRoom.Error())
		return
	}
	for i := range p.Elements {
		if err := p.Elements[i].Validate(); err != nil {
			h.sendError(m, protocol.CodeBadPayload, "elements-bulk-replace: "+err.Error())
			return
		}
	}
	rm, ok := h.memberRoom(m, p.RoomID)
	if !ok {
		return
	}
	els := rm.State.ApplyRemoteBulkReplace(p.Elements)
	h.broadcast(p.RoomID, protocol.EventElementsReplaced, protocol.ElementsReplacedBroadcast{
		RoomID:   p.RoomID,
		Elements: els,
	}, m.connID)
	h.flusher.MarkDirty(rm.ProjectID)
}

func (h *CanvasWSHandler) handleSettingsUpdate(m *connState, env *protocol.Envelope) {
	var p protocol.SettingsPayload
	if env.Bind(&p) != nil || p.RoomID == "" {
		h.sendError(m, protocol.CodeBadPayload, "canvas-settings-update: "+protocol.ErrMissingRoom.Error())
		return
	}
	rm, ok := h.memberRoom(m, p.RoomID)
	if !ok {
		return
	}
	merged := rm.State.ApplyRemoteSettings(p.Settings)
	h.broadcast(p.RoomID, protocol.EventCanvasSettingsChanged, protocol.SettingsBroadcast{
		RoomID:   p.RoomID,
		Settings: merged,
	}, m.connID)
	h.flusher.MarkDirty(rm.ProjectID)
}

// --- ephemeral events (never persisted) ---

func (h *CanvasWSHandler) handleCursorMove(m *connState, env *protocol.Envelope) {
	var p protocol.CursorPayload
	if env.Bind(&p) != nil || p.RoomID == "" {
		return // cursor spam is not worth an error frame
	}
	if !h.registry.UpdateCursor(p.RoomID, m.connID, p.Position.X, p.Position.Y) {
		return
	}
	h.broadcast(p.RoomID, protocol.EventCursorMoved, protocol.CursorBroadcast{
		RoomID:       p.RoomID,
		ConnectionID: m.connID,
		Position:     p.Position,
	}, m.connID)
}

func (h *CanvasWSHandler) handleSelectionChange(m *connState, env *protocol.Envelope) {
	var p protocol.SelectionPayload
	if env.Bind(&p) != nil || p.RoomID == "" {
		return
	}
	if !h.registry.UpdateSelection(p.RoomID, m.connID, p.SelectedIDs) {
		return
	}
	h.broadcast(p.RoomID, protocol.EventSelectionChanged, protocol.SelectionBroadcast{
		RoomID:       p.RoomID,
		ConnectionID: m.connID,
		SelectedIDs:  p.SelectedIDs,
	}, m.connID)
}

// --- plumbing ---

// broadcast fans an event to all room members except the originator.
func (h *CanvasWSHandler) broadcast(roomID, eventType string, payload any, excludeConnID string) {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		logx.L().Errorw("event encode failed", "event", eventType, "err", err)
		return
	}
	h.router.Broadcast(roomID, frame, excludeConnID)
}

func (h *CanvasWSHandler) sendEvent(m *room.Member, eventType string, payload any) {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		logx.L().Errorw("event encode failed", "event", eventType, "err", err)
		return
	}
	if err := m.Send(frame); err != nil {
		logx.L().Warnw("direct send failed", "event", eventType, "err", err)
	}
}

func (h *CanvasWSHandler) sendError(m *connState, code, message string) {
	h.sendEvent(m.member, protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
}

func toParticipant(e presence.Entry) protocol.Participant {
	p := protocol.Participant{
		ConnectionID: e.ConnectionID,
		UserID:       e.UserID,
		Nickname:     e.Nickname,
		SelectedIDs:  e.SelectedIDs,
	}
	if e.Cursor != nil {
		p.Cursor = &protocol.Position{X: e.Cursor.X, Y: e.Cursor.Y}
	}
	return p
}

// parseProjectID maps a room id onto its project row. Accepts the
// canonical "project-{id}" form and a bare numeric id.
func parseProjectID(roomID string) (int64, error) {
	if strings.HasPrefix(roomID, "project-") {
		return strconv.ParseInt(strings.TrimPrefix(roomID, "project-"), 10, 64)
	}
	return strconv.ParseInt(roomID, 10, 64)
}
