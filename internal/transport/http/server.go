package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireplay/internal/config"
	"github.com/vovakirdan/wireplay/internal/relay"
)

// NewServer builds the relay's HTTP server: health, stats, and the
// websocket endpoint.
func NewServer(hub *relay.Hub, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/stats", statsHandler(hub))
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

func statsHandler(hub *relay.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := hub.CurrentStats(c.Request.Context())
		if err != nil {
			c.JSON(stdhttp.StatusServiceUnavailable, gin.H{"error": "hub unavailable"})
			return
		}
		c.JSON(stdhttp.StatusOK, stats)
	}
}
