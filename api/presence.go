package api

// Presence notifications. The joiner receives the full room roster
// (including itself); everyone else learns only about the arrival or
// departure. All deliveries are best effort against a membership snapshot
// taken while the registry lock was held.

// notifyJoin sends users:active to the joining session and user:joined to
// every other current member.
func (h *Hub) notifyJoin(joiner *Session, members []*Session) {
	roster := activeUsersView(members)
	if frame, err := newFrame(EventUsersActive, roster); err == nil {
		h.deliverOne(joiner, EventUsersActive, frame)
	} else {
		h.logger.Error("Failed to build users:active frame error=%v", err)
	}

	joined := UserPresence{UserID: joiner.UserID, DisplayName: joiner.DisplayName}
	frame, err := newFrame(EventUserJoined, joined)
	if err != nil {
		h.logger.Error("Failed to build user:joined frame error=%v", err)
		return
	}
	for _, member := range members {
		if member.ID == joiner.ID {
			continue
		}
		h.deliverOne(member, EventUserJoined, frame)
	}
}

// notifyLeave sends user:left to the remaining members of a room the session
// departed, whether by explicit leave or disconnect cleanup.
func (h *Hub) notifyLeave(departed *Session, remaining []*Session) {
	left := UserPresence{UserID: departed.UserID, DisplayName: departed.DisplayName}
	frame, err := newFrame(EventUserLeft, left)
	if err != nil {
		h.logger.Error("Failed to build user:left frame error=%v", err)
		return
	}
	for _, member := range remaining {
		if member.ID == departed.ID {
			continue
		}
		h.deliverOne(member, EventUserLeft, frame)
	}
}

// activeUsersView computes the presence roster for a membership snapshot
func activeUsersView(members []*Session) []ActiveUser {
	users := make([]ActiveUser, 0, len(members))
	for _, s := range members {
		users = append(users, s.activeUser())
	}
	return users
}
