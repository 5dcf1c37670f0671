package api

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Inbound event names (client to server)
const (
	EventJoinProject  = "join:project"
	EventLeaveProject = "leave:project"
	EventCursorUpdate = "cursor:update"
	EventDataChange   = "data:change"
)

// Outbound event names (server to client)
const (
	EventUsersActive      = "users:active"
	EventUserJoined       = "user:joined"
	EventUserLeft         = "user:left"
	EventCursorMoved      = "cursor:moved"
	EventDataChanged      = "data:changed"
	EventConflictResolved = "conflict:resolved"
	EventError            = "error"
)

// ChangeAction is the kind of mutation carried by a DataChange
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Valid reports whether the action is one of create, update, delete
func (a ChangeAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// CursorPosition is a pointer location within a project view
type CursorPosition struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ElementID string  `json:"elementId,omitempty"`
	Page      string  `json:"page,omitempty"`
}

// ActiveUser is one entry of a room's presence view
type ActiveUser struct {
	UserID      string          `json:"userId"`
	DisplayName string          `json:"displayName"`
	Cursor      *CursorPosition `json:"cursor,omitempty"`
}

// DataChange is a transient mutation notification. The Data payload is
// opaque to the engine and echoed verbatim.
type DataChange struct {
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     ChangeAction    `json:"action"`
	Data       json.RawMessage `json:"data,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	Timestamp  time.Time       `json:"timestamp,omitzero"`
}

// ConflictResolution is the outcome of a conflict decided by calling code.
// The engine relays it; it does not decide who wins.
type ConflictResolution struct {
	ConflictID string    `json:"conflictId"`
	Resolution string    `json:"resolution"`
	ResolvedBy string    `json:"resolvedBy"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
}

// UserPresence is the payload of user:joined and user:left events
type UserPresence struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// CursorMoved is the payload of cursor:moved events
type CursorMoved struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	Position    CursorPosition `json:"position"`
}

// ErrorPayload is the payload of error frames sent to a client
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the wire frame for every event in both directions
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// newFrame marshals an event and payload into a wire frame
func newFrame(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		raw = data
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// Session is the server-side state for one live, authenticated connection.
// Identity fields are immutable for the life of the session; the cursor is
// last-write-wins.
type Session struct {
	ID          string
	UserID      string
	Email       string
	DisplayName string
	Role        string
	ConnectedAt time.Time

	mu     sync.RWMutex
	cursor *CursorPosition
	rooms  map[string]struct{}

	send      chan []byte
	closeOnce sync.Once
}

// Cursor returns a copy of the last known cursor position, or nil
func (s *Session) Cursor() *CursorPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cursor == nil {
		return nil
	}
	c := *s.cursor
	return &c
}

func (s *Session) setCursor(pos CursorPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = &pos
}

// Rooms returns the identifiers of rooms the session currently belongs to
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (s *Session) addRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = struct{}{}
}

func (s *Session) removeRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// enqueue offers a frame to the session's outbound buffer without blocking.
// It reports false when the buffer is full or the session is closed; the
// frame is dropped in either case.
func (s *Session) enqueue(frame []byte) (ok bool) {
	defer func() {
		// A concurrent closeSend can race the send; a frame lost to a
		// closing session is a normal drop, not a fault.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Outbound exposes the frame stream consumed by the connection's write pump
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// closeSend closes the outbound channel exactly once
func (s *Session) closeSend() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// activeUser builds this session's presence entry
func (s *Session) activeUser() ActiveUser {
	return ActiveUser{
		UserID:      s.UserID,
		DisplayName: s.DisplayName,
		Cursor:      s.Cursor(),
	}
}
