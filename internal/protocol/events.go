// Package protocol defines the wire contract between canvas clients and
// the room broadcaster: event names, payload shapes, and the envelope
// codec. Malformed frames are rejected here, at the boundary, so a bad
// event can never corrupt a room's element collection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"canvas-backend/internal/canvas"
)

// Inbound event types (client -> server).
const (
	EventJoinRoom             = "join-room"
	EventLeaveRoom            = "leave-room"
	EventElementAdd           = "element-add"
	EventElementUpdate        = "element-update"
	EventElementDelete        = "element-delete"
	EventElementsBulkReplace  = "elements-bulk-replace"
	EventCursorMove           = "cursor-move"
	EventSelectionChange      = "selection-change"
	EventCanvasSettingsUpdate = "canvas-settings-update"
)

// Outbound event types (server -> room members, sender excluded).
const (
	EventParticipantJoined     = "participant-joined"
	EventParticipantLeft       = "participant-left"
	EventActiveParticipants    = "active-participants"
	EventElementAdded          = "element-added"
	EventElementUpdated        = "element-updated"
	EventElementDeleted        = "element-deleted"
	EventElementsReplaced      = "elements-replaced"
	EventCursorMoved           = "cursor-moved"
	EventSelectionChanged      = "selection-changed"
	EventCanvasSettingsChanged = "canvas-settings-changed"
	EventCanvasState           = "canvas-state"
	EventError                 = "error"
)

var (
	ErrEmptyType     = errors.New("event type is required")
	ErrMissingRoom   = errors.New("roomId is required")
	ErrEmptyPayload  = errors.New("event payload is required")
	ErrBadPayload    = errors.New("malformed event payload")
	ErrUnknownEvent  = errors.New("unknown event type")
	ErrMissingTarget = errors.New("elementId is required")
)

// Envelope is the frame every event travels in.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw frame into an envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if env.Type == "" {
		return nil, ErrEmptyType
	}
	return &env, nil
}

// Bind unmarshals the envelope payload into v.
func (e *Envelope) Bind(v any) error {
	if len(e.Payload) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// Encode marshals an outbound event frame.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// Position is an ephemeral cursor location.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// --- inbound payloads ---

type JoinRoomPayload struct {
	RoomID    string `json:"roomId"`
	AuthToken string `json:"authToken"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// ElementPayload carries the full post-mutation element state, never a
// diff, for both element-add and element-update.
type ElementPayload struct {
	RoomID  string         `json:"roomId"`
	Element canvas.Element `json:"element"`
}

type ElementDeletePayload struct {
	RoomID    string `json:"roomId"`
	ElementID string `json:"elementId"`
}

type BulkReplacePayload struct {
	RoomID   string           `json:"roomId"`
	Elements []canvas.Element `json:"elements"`
}

type CursorPayload struct {
	RoomID   string   `json:"roomId"`
	Position Position `json:"position"`
}

type SelectionPayload struct {
	RoomID      string   `json:"roomId"`
	SelectedIDs []string `json:"selectedIds"`
}

type SettingsPayload struct {
	RoomID   string               `json:"roomId"`
	Settings canvas.SettingsPatch `json:"settings"`
}

// --- outbound payloads ---

// Participant mirrors one presence entry on the wire.
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	UserID       int64     `json:"userId"`
	Nickname     string    `json:"nickname"`
	Cursor       *Position `json:"cursor,omitempty"`
	SelectedIDs  []string  `json:"selectedIds,omitempty"`
}

type ParticipantJoinedPayload struct {
	RoomID      string      `json:"roomId"`
	Participant Participant `json:"participant"`
}

// ParticipantLeftPayload carries the leaver's last known presence
// snapshot so peers can clean up cursor overlays.
type ParticipantLeftPayload struct {
	RoomID      string      `json:"roomId"`
	Participant Participant `json:"participant"`
}

type ActiveParticipantsPayload struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
}

type ElementBroadcast struct {
	RoomID  string         `json:"roomId"`
	Element canvas.Element `json:"element"`
}

type ElementDeletedBroadcast struct {
	RoomID    string `json:"roomId"`
	ElementID string `json:"elementId"`
}

type ElementsReplacedBroadcast struct {
	RoomID   string           `json:"roomId"`
	Elements []canvas.Element `json:"elements"`
}

type CursorBroadcast struct {
	RoomID       string   `json:"roomId"`
	ConnectionID string   `json:"connectionId"`
	Position     Position `json:"position"`
}

type SelectionBroadcast struct {
	RoomID       string   `json:"roomId"`
	ConnectionID string   `json:"connectionId"`
	SelectedIDs  []string `json:"selectedIds"`
}

type SettingsBroadcast struct {
	RoomID   string          `json:"roomId"`
	Settings canvas.Settings `json:"settings"`
}

// CanvasStatePayload is the full document snapshot sent to a joiner.
type CanvasStatePayload struct {
	RoomID   string           `json:"roomId"`
	Elements []canvas.Element `json:"elements"`
	Settings canvas.Settings  `json:"settings"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Admission error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeBadPayload   = "BAD_PAYLOAD"
	CodeRoomClosed   = "ROOM_CLOSED"
)
