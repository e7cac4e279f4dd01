package router

import (
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/feed"
	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/handlers"
	"github.com/narfbach/music-cave/backend/internal/middleware"
	"github.com/narfbach/music-cave/backend/internal/services"
)

// Deps is everything the routes need.
type Deps struct {
	Gateway       gateway.Gateway
	AuthClient    *auth.Client
	Hub           *feed.Hub
	Chat          *services.ChatService
	Tracks        *services.TrackService
	Likes         *services.LikeService
	Comments      *services.CommentService
	Notifications *services.NotificationService
	Profiles      *services.ProfileService
	Log           *zap.Logger
}

// SetupMiddleware configures global Echo middleware.
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
}

// SetupRoutes wires all application routes.
func SetupRoutes(e *echo.Echo, d Deps) {
	e.GET("/health", handlers.HealthCheck(d.Gateway))

	streamHandler := handlers.NewStreamHandler(d.Hub, d.AuthClient, d.Notifications, d.Log)
	streamHandler.RegisterRoutes(e)

	trackHandler := handlers.NewTrackHandler(d.Tracks, d.Likes, d.Comments)
	messageHandler := handlers.NewMessageHandler(d.Chat)
	notificationHandler := handlers.NewNotificationHandler(d.Notifications)
	userHandler := handlers.NewUserHandler(d.Profiles)

	// Public reads: the cave is visible before signing in.
	public := e.Group("/api/v1")
	trackHandler.RegisterPublicRoutes(public)
	messageHandler.RegisterPublicRoutes(public)
	userHandler.RegisterPublicRoutes(public)

	// Writes and private reads require a verified member.
	protected := e.Group("/api/v1")
	protected.Use(authMiddleware(d))
	trackHandler.RegisterProtectedRoutes(protected)
	messageHandler.RegisterProtectedRoutes(protected)
	notificationHandler.RegisterProtectedRoutes(protected)
	userHandler.RegisterProtectedRoutes(protected)

	d.Log.Info("routes configured")
}

func authMiddleware(d Deps) echo.MiddlewareFunc {
	if d.AuthClient != nil {
		return middleware.FirebaseAuth(d.AuthClient, d.Profiles)
	}
	// No identity provider configured; refuse writes rather than accept
	// anonymous ones.
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "Auth is not configured")
		}
	}
}
