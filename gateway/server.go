package gateway

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/observability"
	"chat-presence/projection"
	"chat-presence/runtime"
	"chat-presence/services"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const (
	maxUploadSize  = 10 << 20
	defaultedLimit = 20
)

// Server exposes the websocket endpoint and the REST surface (history,
// search, uploads, retention) behind JWT authentication.
type Server struct {
	log      *slog.Logger
	verifier contract.IIdentityVerifier
	registry contract.IRegistry
	presence *runtime.Presence
	router   *runtime.Router
	service  services.IChatService
	activity *projection.RoomActivity
	metrics  *observability.Metrics
	validate *validator.Validate
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
}

func NewServer(log *slog.Logger, verifier contract.IIdentityVerifier,
	registry contract.IRegistry, presence *runtime.Presence,
	router *runtime.Router, service services.IChatService,
	activity *projection.RoomActivity, metrics *observability.Metrics) *Server {
	s := &Server{
		log:      log,
		verifier: verifier,
		registry: registry,
		presence: presence,
		router:   router,
		service:  service,
		activity: activity,
		metrics:  metrics,
		validate: newValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy belongs to the reverse proxy in front of us.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
	}
	// A connection whose outbound queue overflowed is closed; its read
	// pump then runs the normal disconnect path.
	router.OnEvict(s.closeClient)
	return s
}

// Routes mounts every endpoint on a gin engine.
func (s *Server) Routes(engine *gin.Engine, uploadsDir string) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/ws", s.handleWebsocket)
	engine.Static("/uploads", uploadsDir)

	api := engine.Group("/api", s.authMiddleware())
	api.GET("/rooms", s.handleRooms)
	api.GET("/stats", s.handleStats)
	api.GET("/rooms/:room/messages", s.handleHistory)
	api.GET("/rooms/:room/search", s.handleSearch)
	api.POST("/rooms/:room/files", s.handleUpload)
	api.DELETE("/messages", s.handlePurge)
}

// authMiddleware verifies the bearer token and stashes the participant in
// the request context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		participant, err := s.verifier.Verify(bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}
		c.Set("participant", participant)
		c.Next()
	}
}

// bearerToken extracts the credential from the Authorization header, or
// from the token query parameter for clients that cannot set headers
// (the browser websocket API).
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	return c.Query("token")
}

func mustParticipant(c *gin.Context) domain.Participant {
	v, _ := c.Get("participant")
	return v.(domain.Participant)
}

func (s *Server) handleWebsocket(c *gin.Context) {
	participant, err := s.verifier.Verify(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	client := newClient(conn, participant, s.log, s.presence, s.service, s.validate)
	s.registry.Register(client.ID(), participant, client)
	s.track(client)
	s.log.Info("connection opened", "conn_id", client.ID(), "participant_id", participant.ID)

	go client.writePump()
	// The read pump owns the connection lifecycle; it runs on the request
	// goroutine and returns when the transport dies.
	client.readPump(c.Request.Context())
	s.untrack(client.ID())
	s.log.Info("connection closed", "conn_id", client.ID(), "participant_id", participant.ID)
}

func (s *Server) handleRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.activity.Summaries()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleHistory(c *gin.Context) {
	room := domain.RoomID(c.Param("room"))
	var cursor *string
	if raw, ok := c.GetQuery("cursor"); ok && raw != "" {
		cursor = &raw
	}

	messages, next, err := s.service.History(room, cursor)
	if err != nil {
		s.log.Error("history read failed", "room", room, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "next_cursor": next})
}

func (s *Server) handleSearch(c *gin.Context) {
	room := domain.RoomID(c.Param("room"))
	terms := c.Query("q")
	if terms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing q parameter"})
		return
	}
	limit := defaultedLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}

	messages, err := s.service.Search(c.Request.Context(), room, terms, limit)
	if err != nil {
		s.log.Error("search failed", "room", room, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "search unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) handleUpload(c *gin.Context) {
	participant := mustParticipant(c)
	room := domain.RoomID(c.Param("room"))

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing file field"})
		return
	}
	defer file.Close()
	if header.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "file too large"})
		return
	}

	data := make([]byte, header.Size)
	if _, err := io.ReadFull(file, data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unreadable upload"})
		return
	}

	msg, err := s.service.ShareFile(c.Request.Context(), participant, room, data, header.Filename)
	if err != nil {
		s.log.Error("upload failed", "room", room, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (s *Server) handlePurge(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("older_than_days", "30"))
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "older_than_days must be a positive integer"})
		return
	}

	count, err := s.service.Purge(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		s.log.Error("purge failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "purge failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": count})
}

func (s *Server) track(client *Client) {
	s.mu.Lock()
	s.clients[client.ID()] = client
	s.mu.Unlock()
	s.metrics.ConnectionOpened()
}

func (s *Server) untrack(connID string) {
	s.mu.Lock()
	delete(s.clients, connID)
	s.mu.Unlock()
	s.metrics.ConnectionClosed()
}

func (s *Server) closeClient(connID string) {
	s.mu.Lock()
	client := s.clients[connID]
	s.mu.Unlock()
	if client != nil {
		s.metrics.ConnectionEvicted()
		client.Close()
	}
}

// CloseAll tears down every live connection, used on shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()
	for _, client := range clients {
		client.Close()
	}
}
