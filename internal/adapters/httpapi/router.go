// Package httpapi wires the gin router: health, the authenticated
// websocket endpoint, and the companion history surface.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"chatline/internal/adapters/ws"
	"chatline/internal/config"
	"chatline/internal/core"
	"chatline/internal/domain"
	"chatline/internal/hub"
)

const defaultHistoryLimit = 50

func SetupRouter(ctx context.Context, cfg *config.Config, h *hub.Hub, store core.Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	verifier := NewVerifier(cfg.Secret)
	api := r.Group("/api", AuthMiddleware(verifier))

	api.GET("/rooms/:id/messages", messagesHandler(store))

	ctl := ws.NewController(h, cfg.ReadLimit, cfg.PingPeriod)
	api.GET("/ws", func(c *gin.Context) {
		user, ok := Identity(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		ctl.Handle(ctx, c, user)
	})

	log.Info().Str("module", "adapters.httpapi").Msg("router setup")
	return r
}

func messagesHandler(store core.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid limit"})
			return
		}
		roomID := domain.RoomID(c.Param("id"))
		msgs, err := store.MessagesByRoom(c.Request.Context(), roomID, limit)
		if err != nil {
			log.Error().Str("module", "adapters.httpapi").Str("room", string(roomID)).Err(err).Msg("load messages")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load messages"})
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}
