package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/planquant/collab/internal/slogging"
)

// MessageHandler processes one inbound event type
type MessageHandler interface {
	Event() string
	HandleMessage(client *Client, payload json.RawMessage) error
}

// MessageRouter dispatches inbound frames to their handlers. Malformed
// messages are logged and dropped; the connection is never closed for a
// single bad message.
type MessageRouter struct {
	handlers map[string]MessageHandler
}

// NewMessageRouter creates a router with the engine's default handlers
func NewMessageRouter() *MessageRouter {
	router := &MessageRouter{
		handlers: make(map[string]MessageHandler),
	}

	router.RegisterHandler(&joinProjectHandler{})
	router.RegisterHandler(&leaveProjectHandler{})
	router.RegisterHandler(&cursorUpdateHandler{})
	router.RegisterHandler(&dataChangeHandler{})

	return router
}

// RegisterHandler registers a message handler for its event
func (r *MessageRouter) RegisterHandler(handler MessageHandler) {
	r.handlers[handler.Event()] = handler
}

// Route parses the envelope and dispatches. A handler panic is contained to
// this message; it never takes down the connection's read loop.
func (r *MessageRouter) Route(client *Client, raw []byte) {
	logger := slogging.Get()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("PANIC routing message session_id=%s user_id=%s error=%v stack=%s",
				client.session.ID, client.session.UserID, rec, debug.Stack())
		}
	}()

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		metricProtocolErrorsTotal.Inc()
		logger.Warn("Unparseable frame session_id=%s error=%v raw=%s",
			client.session.ID, err, slogging.SanitizeLogMessage(string(raw)))
		client.sendError("malformed_message", "Message is not a valid event envelope")
		return
	}

	handler, ok := r.handlers[envelope.Event]
	if !ok {
		metricProtocolErrorsTotal.Inc()
		logger.Warn("Unsupported event %q from user %s session_id=%s",
			envelope.Event, client.session.UserID, client.session.ID)
		client.sendError("unsupported_event", fmt.Sprintf("Event %q is not supported", envelope.Event))
		return
	}

	metricMessagesReceivedTotal.WithLabelValues(envelope.Event).Inc()

	if err := handler.HandleMessage(client, envelope.Payload); err != nil {
		metricProtocolErrorsTotal.Inc()
		logger.Warn("Rejected %s message session_id=%s user_id=%s error=%v",
			envelope.Event, client.session.ID, client.session.UserID, err)
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			client.sendError(protoErr.Code, protoErr.Message)
		} else {
			client.sendError("invalid_payload", "Message payload could not be processed")
		}
	}
}

// joinProjectHandler handles join:project
type joinProjectHandler struct{}

func (h *joinProjectHandler) Event() string {
	return EventJoinProject
}

func (h *joinProjectHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return &ProtocolError{Code: "invalid_payload", Message: "join:project payload must contain roomId"}
	}
	if body.RoomID == "" {
		return &ProtocolError{Code: "missing_room", Message: "roomId is required"}
	}

	client.hub.JoinRoom(client.session.ID, body.RoomID)
	return nil
}

// leaveProjectHandler handles leave:project
type leaveProjectHandler struct{}

func (h *leaveProjectHandler) Event() string {
	return EventLeaveProject
}

func (h *leaveProjectHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return &ProtocolError{Code: "invalid_payload", Message: "leave:project payload must contain roomId"}
	}
	if body.RoomID == "" {
		return &ProtocolError{Code: "missing_room", Message: "roomId is required"}
	}

	client.hub.LeaveRoom(client.session.ID, body.RoomID)
	return nil
}

// cursorUpdateHandler handles cursor:update
type cursorUpdateHandler struct{}

func (h *cursorUpdateHandler) Event() string {
	return EventCursorUpdate
}

func (h *cursorUpdateHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var body struct {
		RoomID   string          `json:"roomId"`
		Position *CursorPosition `json:"position"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return &ProtocolError{Code: "invalid_payload", Message: "cursor:update payload is malformed"}
	}
	if body.RoomID == "" {
		return &ProtocolError{Code: "missing_room", Message: "roomId is required"}
	}
	if body.Position == nil {
		return &ProtocolError{Code: "missing_position", Message: "position is required"}
	}

	client.hub.UpdateCursor(client.session.ID, body.RoomID, *body.Position)
	return nil
}

// dataChangeHandler handles data:change. The server stamps attribution and
// timestamp; a member-originated change is relayed to the rest of the room,
// never echoed back to the sender.
type dataChangeHandler struct{}

func (h *dataChangeHandler) Event() string {
	return EventDataChange
}

func (h *dataChangeHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	var body struct {
		RoomID string      `json:"roomId"`
		Change *DataChange `json:"change"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return &ProtocolError{Code: "invalid_payload", Message: "data:change payload is malformed"}
	}
	if body.RoomID == "" {
		return &ProtocolError{Code: "missing_room", Message: "roomId is required"}
	}
	if body.Change == nil {
		return &ProtocolError{Code: "missing_change", Message: "change is required"}
	}
	if body.Change.EntityType == "" || body.Change.EntityID == "" {
		return &ProtocolError{Code: "invalid_change", Message: "change must identify an entity"}
	}
	if !body.Change.Action.Valid() {
		return &ProtocolError{Code: "invalid_action", Message: "action must be create, update, or delete"}
	}

	change := *body.Change
	change.UserID = client.session.UserID
	client.hub.SubmitChange(body.RoomID, change, client.session.ID)
	return nil
}
