package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/dmchat/internal/auth"
	"github.com/vovakirdan/dmchat/internal/config"
	"github.com/vovakirdan/dmchat/internal/core"
	"github.com/vovakirdan/dmchat/internal/store"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

// NewServer builds the HTTP server: websocket endpoint, REST API and health check.
func NewServer(hub *core.Hub, authService *auth.Service, users store.UserStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		rooms, conns := hub.Registry().Stats()
		c.JSON(stdhttp.StatusOK, HealthResponse{Status: "ok", Rooms: rooms, Connections: conns})
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	peerHandlers := NewPeerHandlers(users, hub.Registry(), logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	protected.GET("/peers", peerHandlers.ListPeers)

	// The websocket endpoint bypasses gin: gin's writer refuses to hijack
	// after the upgrade response header is written.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
