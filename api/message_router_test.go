package api

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoutedClient(t *testing.T, hub *Hub, router *MessageRouter, name string) *Client {
	t.Helper()
	session := hub.CreateSession(testIdentity(name))
	return newClient(hub, session, nil, router, DefaultOptions())
}

func route(client *Client, event string, payload string) {
	frame := fmt.Sprintf(`{"event":%q,"payload":%s}`, event, payload)
	client.router.Route(client, []byte(frame))
}

func TestRouteJoinAndLeave(t *testing.T) {
	hub := NewHub(32)
	router := NewMessageRouter()
	client := newRoutedClient(t, hub, router, "alice")

	route(client, EventJoinProject, `{"roomId":"proj-1"}`)
	require.Len(t, hub.RoomMembers("proj-1"), 1)
	frame := nextFrame(t, client.session)
	assert.Equal(t, EventUsersActive, frame.Event)

	route(client, EventLeaveProject, `{"roomId":"proj-1"}`)
	assert.Empty(t, hub.RoomMembers("proj-1"))
}

func TestRouteCursorUpdate(t *testing.T) {
	hub := NewHub(32)
	router := NewMessageRouter()
	alice := newRoutedClient(t, hub, router, "alice")
	bob := newRoutedClient(t, hub, router, "bob")
	route(alice, EventJoinProject, `{"roomId":"proj-1"}`)
	route(bob, EventJoinProject, `{"roomId":"proj-1"}`)
	drainFrames(t, alice.session)
	drainFrames(t, bob.session)

	route(alice, EventCursorUpdate, `{"roomId":"proj-1","position":{"x":100,"y":200,"page":"plan-2"}}`)

	frames := drainFrames(t, bob.session)
	require.Equal(t, []string{EventCursorMoved}, eventNames(frames))
	moved := decodePayload[CursorMoved](t, frames[0])
	assert.Equal(t, "user-alice", moved.UserID)
	assert.Equal(t, "plan-2", moved.Position.Page)
	requireNoFrame(t, alice.session)
}

func TestRouteDataChangeStampsAttribution(t *testing.T) {
	hub := NewHub(32)
	router := NewMessageRouter()
	alice := newRoutedClient(t, hub, router, "alice")
	bob := newRoutedClient(t, hub, router, "bob")
	route(alice, EventJoinProject, `{"roomId":"proj-1"}`)
	route(bob, EventJoinProject, `{"roomId":"proj-1"}`)
	drainFrames(t, alice.session)
	drainFrames(t, bob.session)

	// Whatever userId the client claims, the server stamps its own
	route(alice, EventDataChange, `{"roomId":"proj-1","change":{"entityType":"comment","entityId":"cm-2","action":"create","data":{"text":"check slab depth"},"userId":"user-mallory"}}`)

	frames := drainFrames(t, bob.session)
	require.Equal(t, []string{EventDataChanged}, eventNames(frames))
	change := decodePayload[DataChange](t, frames[0])
	assert.Equal(t, "user-alice", change.UserID)
	assert.Equal(t, "comment", change.EntityType)
	assert.False(t, change.Timestamp.IsZero())
	requireNoFrame(t, alice.session)
}

func TestRouteProtocolErrors(t *testing.T) {
	hub := NewHub(32)
	router := NewMessageRouter()

	tests := []struct {
		name    string
		raw     string
		errCode string
	}{
		{"not json", `{{{`, "malformed_message"},
		{"unknown event", `{"event":"presenter:request","payload":{}}`, "unsupported_event"},
		{"join without room", `{"event":"join:project","payload":{}}`, "missing_room"},
		{"join with wrong payload type", `{"event":"join:project","payload":[1,2]}`, "invalid_payload"},
		{"leave without room", `{"event":"leave:project","payload":{}}`, "missing_room"},
		{"cursor without position", `{"event":"cursor:update","payload":{"roomId":"proj-1"}}`, "missing_position"},
		{"cursor without room", `{"event":"cursor:update","payload":{"position":{"x":1,"y":2}}}`, "missing_room"},
		{"change without change", `{"event":"data:change","payload":{"roomId":"proj-1"}}`, "missing_change"},
		{"change without entity", `{"event":"data:change","payload":{"roomId":"proj-1","change":{"action":"update"}}}`, "invalid_change"},
		{"change with bad action", `{"event":"data:change","payload":{"roomId":"proj-1","change":{"entityType":"quantity","entityId":"q-1","action":"upsert"}}}`, "invalid_action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newRoutedClient(t, hub, router, "alice")
			router.Route(client, []byte(tt.raw))

			frames := drainFrames(t, client.session)
			require.Equal(t, []string{EventError}, eventNames(frames))
			errPayload := decodePayload[ErrorPayload](t, frames[0])
			assert.Equal(t, tt.errCode, errPayload.Code)

			// A bad message never evicts the session
			assert.NotNil(t, hub.Session(client.session.ID))
		})
	}
}

func TestRouteHandlerPanicIsContained(t *testing.T) {
	hub := NewHub(32)
	router := NewMessageRouter()
	router.RegisterHandler(&panickyHandler{})
	client := newRoutedClient(t, hub, router, "alice")

	assert.NotPanics(t, func() {
		router.Route(client, []byte(`{"event":"boom","payload":{}}`))
	})
	assert.NotNil(t, hub.Session(client.session.ID))
}

type panickyHandler struct{}

func (h *panickyHandler) Event() string { return "boom" }

func (h *panickyHandler) HandleMessage(client *Client, payload json.RawMessage) error {
	panic("handler exploded")
}
