package api

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSessionLifecycle(t *testing.T) {
	hub := NewHub(32)

	t.Run("CreateSession", func(t *testing.T) {
		session := hub.CreateSession(testIdentity("alice"))
		require.NotNil(t, session)
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, "user-alice", session.UserID)
		assert.Equal(t, "alice", session.DisplayName)
		assert.Equal(t, "estimator", session.Role)
		assert.False(t, session.ConnectedAt.IsZero())
		assert.Nil(t, session.Cursor())
		assert.Empty(t, session.Rooms())

		assert.Same(t, session, hub.Session(session.ID))
		assert.Equal(t, 1, hub.SessionCount())
	})

	t.Run("unique session IDs", func(t *testing.T) {
		a := hub.CreateSession(testIdentity("bob"))
		b := hub.CreateSession(testIdentity("bob"))
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("RemoveSession is idempotent", func(t *testing.T) {
		session := hub.CreateSession(testIdentity("carol"))
		count := hub.SessionCount()

		hub.RemoveSession(session.ID)
		assert.Equal(t, count-1, hub.SessionCount())
		assert.Nil(t, hub.Session(session.ID))

		// Second removal must be a harmless no-op
		hub.RemoveSession(session.ID)
		assert.Equal(t, count-1, hub.SessionCount())

		// The outbound stream is closed exactly once
		_, open := <-session.Outbound()
		assert.False(t, open)
	})
}

func TestHubRoomMembership(t *testing.T) {
	hub := NewHub(32)
	alice := hub.CreateSession(testIdentity("alice"))
	bob := hub.CreateSession(testIdentity("bob"))

	t.Run("room created implicitly on first join", func(t *testing.T) {
		assert.Empty(t, hub.RoomMembers("proj-1"))
		hub.JoinRoom(alice.ID, "proj-1")
		members := hub.RoomMembers("proj-1")
		require.Len(t, members, 1)
		assert.Equal(t, alice.ID, members[0].ID)
		assert.Equal(t, []string{"proj-1"}, alice.Rooms())
	})

	t.Run("second member", func(t *testing.T) {
		hub.JoinRoom(bob.ID, "proj-1")
		assert.Len(t, hub.RoomMembers("proj-1"), 2)
	})

	t.Run("duplicate join keeps membership stable", func(t *testing.T) {
		hub.JoinRoom(alice.ID, "proj-1")
		assert.Len(t, hub.RoomMembers("proj-1"), 2)
	})

	t.Run("join on unknown session is a no-op", func(t *testing.T) {
		hub.JoinRoom("no-such-session", "proj-1")
		assert.Len(t, hub.RoomMembers("proj-1"), 2)
	})

	t.Run("leave removes membership", func(t *testing.T) {
		hub.LeaveRoom(bob.ID, "proj-1")
		members := hub.RoomMembers("proj-1")
		require.Len(t, members, 1)
		assert.Equal(t, alice.ID, members[0].ID)
		assert.Empty(t, bob.Rooms())
	})

	t.Run("leave when not a member is a no-op", func(t *testing.T) {
		hub.LeaveRoom(bob.ID, "proj-1")
		hub.LeaveRoom(bob.ID, "never-existed")
		assert.Len(t, hub.RoomMembers("proj-1"), 1)
	})

	t.Run("room destroyed when membership reaches zero", func(t *testing.T) {
		hub.LeaveRoom(alice.ID, "proj-1")
		assert.Empty(t, hub.RoomMembers("proj-1"))

		hub.mu.RLock()
		_, exists := hub.rooms["proj-1"]
		hub.mu.RUnlock()
		assert.False(t, exists)
	})

	t.Run("session in multiple rooms", func(t *testing.T) {
		hub.JoinRoom(alice.ID, "proj-2")
		hub.JoinRoom(alice.ID, "proj-3")
		assert.ElementsMatch(t, []string{"proj-2", "proj-3"}, alice.Rooms())

		hub.RemoveSession(alice.ID)
		assert.Empty(t, hub.RoomMembers("proj-2"))
		assert.Empty(t, hub.RoomMembers("proj-3"))
	})
}

func TestRoomMembersReturnsSnapshot(t *testing.T) {
	hub := NewHub(32)
	alice := hub.CreateSession(testIdentity("alice"))
	bob := hub.CreateSession(testIdentity("bob"))
	hub.JoinRoom(alice.ID, "proj-1")

	members := hub.RoomMembers("proj-1")
	hub.JoinRoom(bob.ID, "proj-1")

	// The earlier snapshot is unaffected by later membership changes
	assert.Len(t, members, 1)
	assert.Len(t, hub.RoomMembers("proj-1"), 2)
}

func TestHubShutdownClosesAllSessions(t *testing.T) {
	hub := NewHub(32)
	sessions := make([]*Session, 0, 3)
	for i := 0; i < 3; i++ {
		s := hub.CreateSession(testIdentity(fmt.Sprintf("user%d", i)))
		hub.JoinRoom(s.ID, "proj-1")
		sessions = append(sessions, s)
	}

	hub.Shutdown()
	assert.Equal(t, 0, hub.SessionCount())
	for _, s := range sessions {
		drainFrames(t, s)
		_, open := <-s.Outbound()
		assert.False(t, open)
	}
}

// Concurrent joins, leaves, and removals across goroutines must not race or
// leave the registry inconsistent. Run with -race.
func TestHubConcurrentMembership(t *testing.T) {
	hub := NewHub(512)

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			session := hub.CreateSession(testIdentity(fmt.Sprintf("w%d", n)))
			room := fmt.Sprintf("proj-%d", n%4)
			for j := 0; j < 50; j++ {
				hub.JoinRoom(session.ID, room)
				hub.UpdateCursor(session.ID, room, CursorPosition{X: float64(j), Y: float64(n)})
				hub.LeaveRoom(session.ID, room)
			}
			// Disconnect cleanup racing an explicit removal
			go hub.RemoveSession(session.ID)
			hub.RemoveSession(session.ID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.SessionCount())
	for i := 0; i < 4; i++ {
		assert.Empty(t, hub.RoomMembers(fmt.Sprintf("proj-%d", i)))
	}
}
