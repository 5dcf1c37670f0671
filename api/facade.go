package api

import (
	"time"

	"github.com/planquant/collab/auth"
	"github.com/planquant/collab/internal/slogging"
)

// Engine is the collaboration engine facade consumed by the rest of the
// application. Business services inject change notifications and query
// presence through it; clients reach it over the websocket surface.
type Engine struct {
	hub       *Hub
	validator auth.CredentialValidator
	router    *MessageRouter
	opts      Options
	logger    *slogging.Logger
}

// NewEngine wires the hub, inbound router, and credential validator together
func NewEngine(validator auth.CredentialValidator, opts Options) *Engine {
	return &Engine{
		hub:       NewHub(opts.SendBufferSize),
		validator: validator,
		router:    NewMessageRouter(),
		opts:      opts,
		logger:    slogging.Get(),
	}
}

// Hub exposes the session registry, primarily for tests and shutdown
func (e *Engine) Hub() *Hub {
	return e.hub
}

// BroadcastChange announces a server-originated data change to every member
// of the room. There is no sender connection to exclude, so nobody is.
func (e *Engine) BroadcastChange(roomID string, change DataChange) {
	e.hub.SubmitChange(roomID, change, "")
}

// GetActiveUsers returns the presence view for a room
func (e *Engine) GetActiveUsers(roomID string) []ActiveUser {
	return activeUsersView(e.hub.RoomMembers(roomID))
}

// TrackUserCursor pushes a cursor position for a user on behalf of calling
// code. The user must have a session in the room; otherwise the call is a
// no-op, since concurrent disconnects are expected and normal.
func (e *Engine) TrackUserCursor(roomID, userID string, position CursorPosition) {
	for _, member := range e.hub.RoomMembers(roomID) {
		if member.UserID == userID {
			e.hub.UpdateCursor(member.ID, roomID, position)
			return
		}
	}
	e.logger.Debug("TrackUserCursor for absent user user_id=%s room_id=%s", userID, roomID)
}

// ResolveConflict relays a conflict-resolution outcome to every connected
// session. Resolution events are global rather than room-scoped, matching
// how the rest of the platform consumes them.
func (e *Engine) ResolveConflict(conflictID string, resolution ConflictResolution) {
	resolution.ConflictID = conflictID
	if resolution.Timestamp.IsZero() {
		resolution.Timestamp = time.Now().UTC()
	}
	e.hub.BroadcastGlobal(EventConflictResolved, resolution)
}

// Shutdown removes every session and closes their outbound streams
func (e *Engine) Shutdown() {
	e.hub.Shutdown()
}
