package api

import "time"

// BroadcastToRoom delivers an event to every current member of a room except
// the optionally excluded session. Pass an empty excludeSessionID to include
// everyone. Each delivery attempt is independent; one unreachable recipient
// never aborts the rest.
func (h *Hub) BroadcastToRoom(roomID, event string, payload any, excludeSessionID string) {
	members := h.RoomMembers(roomID)
	if len(members) == 0 {
		return
	}

	frame, err := newFrame(event, payload)
	if err != nil {
		h.logger.Error("Failed to build %s frame room_id=%s error=%v", event, roomID, err)
		return
	}

	for _, member := range members {
		if excludeSessionID != "" && member.ID == excludeSessionID {
			continue
		}
		h.deliverOne(member, event, frame)
	}
}

// BroadcastGlobal delivers an event to every connected session regardless of
// room membership. Only conflict resolutions use this path.
func (h *Hub) BroadcastGlobal(event string, payload any) {
	sessions := h.allSessions()
	if len(sessions) == 0 {
		return
	}

	frame, err := newFrame(event, payload)
	if err != nil {
		h.logger.Error("Failed to build %s frame error=%v", event, err)
		return
	}

	for _, session := range sessions {
		h.deliverOne(session, event, frame)
	}
}

// UpdateCursor stores the session's latest cursor position and announces it
// to the rest of the room. The most recent position always wins; there is no
// queueing or coalescing.
func (h *Hub) UpdateCursor(sessionID, roomID string, position CursorPosition) {
	session := h.Session(sessionID)
	if session == nil {
		h.logger.Debug("Cursor update for unknown session session_id=%s room_id=%s", sessionID, roomID)
		return
	}
	session.setCursor(position)

	h.BroadcastToRoom(roomID, EventCursorMoved, CursorMoved{
		UserID:      session.UserID,
		DisplayName: session.DisplayName,
		Position:    position,
	}, sessionID)
}

// SubmitChange stamps the change timestamp if absent and announces it to the
// room. Member-originated changes exclude the sender; changes injected
// through the facade have no sender connection and exclude nobody.
func (h *Hub) SubmitChange(roomID string, change DataChange, excludeSessionID string) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	h.BroadcastToRoom(roomID, EventDataChanged, change, excludeSessionID)
}

// deliverOne enqueues a frame for a single recipient. Overflowing or closed
// buffers drop the frame; cursor and presence data is ephemeral, so a stale
// loss is preferable to stalling the room on a slow reader.
func (h *Hub) deliverOne(recipient *Session, event string, frame []byte) {
	if recipient.enqueue(frame) {
		metricBroadcastFramesTotal.WithLabelValues(event).Inc()
		return
	}
	metricDroppedFramesTotal.Inc()
	deliveryErr := &DeliveryError{SessionID: recipient.ID, Event: event}
	h.logger.Warn("Dropped frame user_id=%s error=%v", recipient.UserID, deliveryErr)
}
