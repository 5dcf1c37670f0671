package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error is the JSON error body returned by the HTTP surface
type Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The platform gateway terminates origins; the service itself accepts all
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RegisterRoutes mounts the websocket endpoint, the facade REST surface, and
// the operational endpoints on a gin router.
func (e *Engine) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", e.HandleWS)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": e.hub.SessionCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Service-to-service facade, same bearer validation as the handshake
	svc := r.Group("/collaboration", e.RequireBearer())
	svc.POST("/changes", e.handleBroadcastChange)
	svc.GET("/projects/:id/users", e.handleGetActiveUsers)
	svc.POST("/cursors", e.handleTrackUserCursor)
	svc.POST("/conflicts/:id/resolution", e.handleResolveConflict)
}

// HandleWS performs the authenticated handshake and admits the connection.
// The credential is validated with a bounded timeout before the upgrade, so
// a rejected handshake leaves no session state behind.
func (e *Engine) HandleWS(c *gin.Context) {
	token := bearerToken(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), e.opts.AuthTimeout)
	defer cancel()

	identity, err := e.validator.ValidateCredential(ctx, token)
	if err != nil {
		metricAuthFailuresTotal.Inc()
		e.logger.Warn("WebSocket handshake rejected client_ip=%s error=%v", c.ClientIP(), err)
		c.JSON(http.StatusUnauthorized, Error{
			Error:   "unauthorized",
			Message: "Authentication failed",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		e.logger.Error("Failed to upgrade connection client_ip=%s error=%v", c.ClientIP(), err)
		return
	}

	metricConnectionsTotal.Inc()
	session := e.hub.CreateSession(identity)
	newClient(e.hub, session, conn, e.router, e.opts).Start()
}

// RequireBearer validates the bearer credential on facade REST calls
func (e *Engine) RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), e.opts.AuthTimeout)
		defer cancel()

		if _, err := e.validator.ValidateCredential(ctx, bearerToken(c)); err != nil {
			metricAuthFailuresTotal.Inc()
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, Error{
				Error:   "unauthorized",
				Message: "Authentication failed",
			})
			return
		}
		c.Next()
	}
}

// bearerToken extracts the credential from the Authorization header, falling
// back to the token query parameter for browser websocket clients that
// cannot set headers.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func (e *Engine) handleBroadcastChange(c *gin.Context) {
	var body struct {
		RoomID string     `json:"roomId" binding:"required"`
		Change DataChange `json:"change"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_request", Message: err.Error()})
		return
	}
	if body.Change.EntityType == "" || body.Change.EntityID == "" || !body.Change.Action.Valid() {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_change",
			Message: "change must carry entityType, entityId, and a valid action",
		})
		return
	}

	e.BroadcastChange(body.RoomID, body.Change)
	c.Status(http.StatusAccepted)
}

func (e *Engine) handleGetActiveUsers(c *gin.Context) {
	c.JSON(http.StatusOK, e.GetActiveUsers(c.Param("id")))
}

func (e *Engine) handleTrackUserCursor(c *gin.Context) {
	var body struct {
		RoomID   string          `json:"roomId" binding:"required"`
		UserID   string          `json:"userId" binding:"required"`
		Position *CursorPosition `json:"position" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_request", Message: err.Error()})
		return
	}

	e.TrackUserCursor(body.RoomID, body.UserID, *body.Position)
	c.Status(http.StatusAccepted)
}

func (e *Engine) handleResolveConflict(c *gin.Context) {
	var body struct {
		Resolution string `json:"resolution" binding:"required,oneof=accept reject"`
		ResolvedBy string `json:"resolvedBy" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_request", Message: err.Error()})
		return
	}

	e.ResolveConflict(c.Param("id"), ConflictResolution{
		Resolution: body.Resolution,
		ResolvedBy: body.ResolvedBy,
	})
	c.Status(http.StatusAccepted)
}
