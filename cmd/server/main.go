package main

import (
	"context"

	"firebase.google.com/go/v4/auth"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/feed"
	"github.com/narfbach/music-cave/backend/internal/gateway"
	fsgw "github.com/narfbach/music-cave/backend/internal/gateway/firestore"
	mggw "github.com/narfbach/music-cave/backend/internal/gateway/mongo"
	pggw "github.com/narfbach/music-cave/backend/internal/gateway/postgres"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/push"
	"github.com/narfbach/music-cave/backend/internal/router"
	"github.com/narfbach/music-cave/backend/internal/services"
	"github.com/narfbach/music-cave/backend/pkg/config"
	"github.com/narfbach/music-cave/backend/pkg/firebase"
	"github.com/narfbach/music-cave/backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	gw := buildGateway(ctx, cfg, log)

	var authClient *auth.Client
	var fbApp *firebase.App
	if cfg.FirebaseCredentialsPath != "" {
		app, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			log.Fatal("firebase init failed", zap.Error(err))
		}
		fbApp = app
		authClient = app.AuthClient
		log.Info("firebase initialized")
	} else {
		log.Warn("no firebase credentials; auth and push are disabled")
	}

	profiles := services.NewProfileService(gw, log)
	notifications := services.NewNotificationService(gw, log)
	chat := services.NewChatService(gw, log)
	tracks := services.NewTrackService(gw, log)
	likes := services.NewLikeService(gw, notifications, log)
	comments := services.NewCommentService(gw, notifications, log)

	hub := feed.NewHub()
	go hub.Run()
	startPublicStreams(ctx, hub, chat, tracks, log)

	if cfg.PushEnabled && fbApp != nil {
		sender := push.NewSender(gw, fbApp.MessagingClient, profiles, log)
		go func() {
			if err := sender.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("push sender stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	router.SetupMiddleware(e)
	router.SetupRoutes(e, router.Deps{
		Gateway:       gw,
		AuthClient:    authClient,
		Hub:           hub,
		Chat:          chat,
		Tracks:        tracks,
		Likes:         likes,
		Comments:      comments,
		Notifications: notifications,
		Profiles:      profiles,
		Log:           log,
	})

	log.Info("listening", zap.String("port", cfg.Port), zap.String("backend", cfg.Backend))
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func buildGateway(ctx context.Context, cfg *config.Config, log *zap.Logger) gateway.Gateway {
	switch cfg.Backend {
	case "firestore":
		return fsgw.New(ctx, cfg.FirestoreProjectID, cfg.FirebaseCredentialsPath, log)
	case "postgres":
		return pggw.New(ctx, cfg.PostgresURL, cfg.RedisAddr, log)
	case "mongo":
		return mggw.New(ctx, cfg.MongoURI, cfg.MongoDB, log)
	case "memory":
		log.Warn("using the in-memory backend; data will not survive a restart")
		return gateway.NewMemory()
	default:
		log.Fatal("unknown backend", zap.String("backend", cfg.Backend))
		return nil
	}
}

// startPublicStreams runs the chat and track synchronizers that feed every
// connected page through the hub.
func startPublicStreams(ctx context.Context, hub *feed.Hub, chat *services.ChatService, tracks *services.TrackService, log *zap.Logger) {
	chatRenderer := feed.NewStreamRenderer(feed.StreamChat, func(id string, data map[string]any) any {
		return models.MessageFromRecord(id, data)
	}, hub.Broadcast, log)
	trackRenderer := feed.NewStreamRenderer(feed.StreamTracks, func(id string, data map[string]any) any {
		return models.TrackFromRecord(id, data)
	}, hub.Broadcast, log)

	for name, sync := range map[string]interface{ Run(context.Context) error }{
		"chat":   chat.Synchronizer(chatRenderer),
		"tracks": tracks.Synchronizer(trackRenderer),
	} {
		name, sync := name, sync
		go func() {
			if err := sync.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("stream stopped", zap.String("stream", name), zap.Error(err))
			}
		}()
	}
}
