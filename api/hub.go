package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planquant/collab/auth"
	"github.com/planquant/collab/internal/slogging"
)

// Hub is the authoritative session and room registry. All membership
// mutations go through it; rooms exist implicitly while they have members.
//
// Lock discipline: membership is mutated and snapshotted under the hub mutex,
// delivery always happens after it is released. A slow recipient can only
// lose its own frames, never delay the room.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session

	sendBufferSize int
	logger         *slogging.Logger
}

// NewHub creates an empty registry. sendBufferSize is the per-session
// outbound frame buffer.
func NewHub(sendBufferSize int) *Hub {
	if sendBufferSize <= 0 {
		sendBufferSize = 256
	}
	return &Hub{
		sessions:       make(map[string]*Session),
		rooms:          make(map[string]map[string]*Session),
		sendBufferSize: sendBufferSize,
		logger:         slogging.Get(),
	}
}

// CreateSession allocates and stores a new session for a validated identity
func (h *Hub) CreateSession(identity *auth.Identity) *Session {
	session := &Session{
		ID:          uuid.New().String(),
		UserID:      identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
		ConnectedAt: time.Now().UTC(),
		rooms:       make(map[string]struct{}),
		send:        make(chan []byte, h.sendBufferSize),
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()

	metricActiveSessions.Inc()
	h.logger.Info("Session created session_id=%s user_id=%s role=%s",
		session.ID, session.UserID, session.Role)
	return session
}

// Session returns the live session with the given ID, or nil
func (h *Hub) Session(sessionID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sessionID]
}

// SessionCount returns the number of live sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// JoinRoom adds the session to the room, creating the room on first join.
// Joining a room the session is already in does not change membership but
// still re-announces presence to the room.
func (h *Hub) JoinRoom(sessionID, roomID string) {
	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		h.logger.Debug("JoinRoom on unknown session session_id=%s room_id=%s", sessionID, roomID)
		return
	}

	room := h.rooms[roomID]
	if room == nil {
		room = make(map[string]*Session)
		h.rooms[roomID] = room
		h.logger.Debug("Room created room_id=%s", roomID)
	}
	room[sessionID] = session
	session.addRoom(roomID)

	members := snapshot(room)
	h.mu.Unlock()

	h.logger.Info("Session joined room session_id=%s user_id=%s room_id=%s members=%d",
		sessionID, session.UserID, roomID, len(members))
	h.notifyJoin(session, members)
}

// LeaveRoom removes the session from the room. Leaving a room the session is
// not in is a no-op.
func (h *Hub) LeaveRoom(sessionID, roomID string) {
	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	room := h.rooms[roomID]
	if !ok || room == nil {
		h.mu.Unlock()
		return
	}
	if _, member := room[sessionID]; !member {
		h.mu.Unlock()
		return
	}

	delete(room, sessionID)
	session.removeRoom(roomID)
	if len(room) == 0 {
		delete(h.rooms, roomID)
		h.logger.Debug("Room emptied room_id=%s", roomID)
	}
	remaining := snapshot(room)
	h.mu.Unlock()

	h.logger.Info("Session left room session_id=%s user_id=%s room_id=%s",
		sessionID, session.UserID, roomID)
	h.notifyLeave(session, remaining)
}

// RemoveSession removes the session from every room and deletes its record,
// emitting one user:left per room it belonged to. Safe to call repeatedly;
// explicit leave and transport-level disconnect can race to clean up the
// same session.
func (h *Hub) RemoveSession(sessionID string) {
	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)

	// Collect the remaining members of each room before releasing the lock
	departures := make([][]*Session, 0, len(session.rooms))
	for roomID := range session.rooms {
		room := h.rooms[roomID]
		if room == nil {
			continue
		}
		delete(room, sessionID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
			continue
		}
		departures = append(departures, snapshot(room))
	}
	h.mu.Unlock()

	metricActiveSessions.Dec()
	h.logger.Info("Session removed session_id=%s user_id=%s rooms=%d",
		sessionID, session.UserID, len(session.rooms))

	for _, remaining := range departures {
		h.notifyLeave(session, remaining)
	}
	session.closeSend()
}

// RoomMembers returns a snapshot of the room's current sessions, safe to
// iterate without holding any lock.
func (h *Hub) RoomMembers(roomID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot(h.rooms[roomID])
}

// allSessions returns a snapshot of every live session
func (h *Hub) allSessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Shutdown closes every session's outbound stream. Used on server stop.
func (h *Hub) Shutdown() {
	for _, s := range h.allSessions() {
		h.RemoveSession(s.ID)
	}
}

func snapshot(room map[string]*Session) []*Session {
	members := make([]*Session, 0, len(room))
	for _, s := range room {
		members = append(members, s)
	}
	return members
}
