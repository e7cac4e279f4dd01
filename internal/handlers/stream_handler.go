package handlers

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/feed"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The page is served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler upgrades page connections onto the realtime feed. Chat and
// track frames are broadcast to everyone; a signed-in connection also gets
// its own private notification stream.
type StreamHandler struct {
	hub           *feed.Hub
	authClient    *auth.Client
	notifications *services.NotificationService
	log           *zap.Logger
}

func NewStreamHandler(hub *feed.Hub, authClient *auth.Client, notifications *services.NotificationService, log *zap.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, authClient: authClient, notifications: notifications, log: log.Named("stream")}
}

// RegisterRoutes registers the websocket endpoint. Auth rides in the token
// query parameter because browsers cannot set headers on websocket dials.
func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/stream", h.Connect)
}

// Connect upgrades the request and serves the feed until the page leaves.
func (h *StreamHandler) Connect(c echo.Context) error {
	userID := h.resolveUser(c)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := feed.NewClient(h.hub, conn, userID)
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if userID != "" {
		renderer := feed.NewStreamRenderer(feed.StreamNotifications, func(id string, data map[string]any) any {
			return models.NotificationFromRecord(id, data)
		}, client.Send, h.log)
		sync := h.notifications.Synchronizer(userID, renderer)
		go func() {
			if err := sync.Run(ctx); err != nil && ctx.Err() == nil {
				h.log.Warn("notification stream ended", zap.String("user", userID), zap.Error(err))
			}
		}()
	}

	go client.WritePump()
	client.ReadPump()
	return nil
}

// resolveUser verifies the optional token query parameter. Anonymous
// connections still get the public streams.
func (h *StreamHandler) resolveUser(c echo.Context) string {
	token := c.QueryParam("token")
	if token == "" || h.authClient == nil {
		return ""
	}
	decoded, err := h.authClient.VerifyIDToken(c.Request().Context(), token)
	if err != nil {
		h.log.Debug("stream token rejected", zap.Error(err))
		return ""
	}
	return decoded.UID
}
