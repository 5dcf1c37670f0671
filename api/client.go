package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/planquant/collab/internal/slogging"
)

// Options tunes per-connection behavior
type Options struct {
	// SendBufferSize is the per-session outbound frame buffer
	SendBufferSize int
	// MaxMessageSize limits inbound frames in bytes
	MaxMessageSize int64
	// PingInterval is the keepalive ping period; must be shorter than PongWait
	PingInterval time.Duration
	// PongWait is how long a silent connection survives before the read
	// deadline trips
	PongWait time.Duration
	// WriteWait bounds each outbound write
	WriteWait time.Duration
	// AuthTimeout bounds the credential validation call during handshake
	AuthTimeout time.Duration
}

// DefaultOptions returns the tuning used when no configuration is supplied
func DefaultOptions() Options {
	return Options{
		SendBufferSize: 256,
		MaxMessageSize: 4096,
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		AuthTimeout:    5 * time.Second,
	}
}

// Client drives the message loop for one websocket connection. The read pump
// processes inbound events sequentially; the write pump drains the session's
// outbound buffer. Cleanup runs exactly once no matter which pump exits
// first or how abruptly the transport died.
type Client struct {
	hub      *Hub
	session  *Session
	conn     *websocket.Conn
	router   *MessageRouter
	opts     Options
	logger   *slogging.Logger
	shutOnce sync.Once
}

func newClient(hub *Hub, session *Session, conn *websocket.Conn, router *MessageRouter, opts Options) *Client {
	return &Client{
		hub:     hub,
		session: session,
		conn:    conn,
		router:  router,
		opts:    opts,
		logger:  slogging.Get(),
	}
}

// Start launches the read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// shutdown removes the session from the registry (emitting departures) and
// closes the transport. Idempotent across racing exit paths.
func (c *Client) shutdown() {
	c.shutOnce.Do(func() {
		c.hub.RemoveSession(c.session.ID)
		_ = c.conn.Close()
	})
}

// readPump reads inbound frames sequentially and hands them to the router.
// Any transport error ends the connection and triggers cleanup.
func (c *Client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error session_id=%s error=%v", c.session.ID, err)
			}
			return
		}
		c.router.Route(c, message)
	}
}

// writePump drains the session's outbound stream and keeps the connection
// alive with pings. It exits when the stream is closed by session removal.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case frame, ok := <-c.session.Outbound():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				// Session removed; say goodbye to the peer
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("WebSocket write error session_id=%s error=%v", c.session.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError reports a protocol problem to this client only
func (c *Client) sendError(code, message string) {
	frame, err := newFrame(EventError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.hub.deliverOne(c.session, EventError, frame)
}
