// Package push delivers FCM notifications for queued like and comment
// events.
package push

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/realtime"
	"github.com/narfbach/music-cave/backend/internal/services"
)

// RecencyWindow is how old a queued event may be and still produce a push.
// Anything older is backlog from before this process subscribed; marking it
// processed without sending keeps restarts from replaying stale pushes.
const RecencyWindow = 10 * time.Second

// Messenger is the slice of the FCM client the sender needs.
type Messenger interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Sender watches the push queue and fans queued events out to the
// recipient's registered device tokens.
type Sender struct {
	gw       gateway.Gateway
	fcm      Messenger
	profiles *services.ProfileService
	dedup    *realtime.Dedup
	log      *zap.Logger
}

func NewSender(gw gateway.Gateway, fcm Messenger, profiles *services.ProfileService, log *zap.Logger) *Sender {
	return &Sender{
		gw:       gw,
		fcm:      fcm,
		profiles: profiles,
		dedup:    realtime.NewDedup(),
		log:      log.Named("push"),
	}
}

// Run blocks, delivering queued events until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) error {
	if err := s.gw.WaitReady(ctx); err != nil {
		return err
	}

	sub, err := s.gw.Subscribe(ctx, gateway.CollectionPushQueue, gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("processed", false)},
	})
	if err != nil {
		return err
	}

	for _, ch := range sub.Snapshot {
		s.handle(ctx, ch)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch, ok := <-sub.Updates:
			if !ok {
				return nil
			}
			if ch.Kind != gateway.Added {
				continue
			}
			s.handle(ctx, ch)
		}
	}
}

func (s *Sender) handle(ctx context.Context, ch gateway.Change) {
	if s.dedup.Has(ch.ID) {
		return
	}
	s.dedup.MarkSeen(ch.ID)

	if gateway.AsBool(ch.Data["processed"]) {
		return
	}

	recent := time.Since(gateway.AsTime(ch.Data["created_at"])) < RecencyWindow
	if recent {
		if err := s.deliver(ctx, ch.Data); err != nil {
			s.log.Warn("push delivery failed", zap.String("event", ch.ID), zap.Error(err))
		}
	}

	if err := s.gw.Update(ctx, gateway.CollectionPushQueue, ch.ID, map[string]any{"processed": true}); err != nil {
		s.log.Warn("mark processed failed", zap.String("event", ch.ID), zap.Error(err))
	}
}

func (s *Sender) deliver(ctx context.Context, data map[string]any) error {
	recipientID := gateway.AsString(data["user_id"])
	profile, err := s.profiles.Get(ctx, recipientID)
	if err != nil {
		return err
	}
	if !profile.NotificationsEnabled || len(profile.FCMTokens) == 0 {
		return nil
	}

	title, body := formatPush(data)
	msg := &messaging.MulticastMessage{
		Tokens:       profile.FCMTokens,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data: map[string]string{
			"type":     gateway.AsString(data["type"]),
			"track_id": gateway.AsString(data["track_id"]),
		},
	}

	resp, err := s.fcm.SendEachForMulticast(ctx, msg)
	if err != nil {
		return err
	}

	var dead []string
	for i, r := range resp.Responses {
		if r.Success {
			continue
		}
		if messaging.IsUnregistered(r.Error) {
			dead = append(dead, profile.FCMTokens[i])
		}
	}
	if len(dead) > 0 {
		if err := s.profiles.RemoveFCMTokens(ctx, recipientID, dead); err != nil {
			s.log.Warn("dead token cleanup failed", zap.String("user", recipientID), zap.Error(err))
		}
	}

	s.log.Info("push delivered",
		zap.String("user", recipientID),
		zap.Int("tokens", len(profile.FCMTokens)),
		zap.Int("failed", resp.FailureCount))
	return nil
}

func formatPush(data map[string]any) (title, body string) {
	from := gateway.AsString(data["from_username"])
	track := gateway.AsString(data["track_title"])
	switch gateway.AsString(data["type"]) {
	case models.NotificationComment:
		comment := gateway.AsString(data["comment_text"])
		return "New Comment!", fmt.Sprintf("%s commented on %q: %s", from, track, comment)
	default:
		return "New Like!", fmt.Sprintf("%s liked %q", from, track)
	}
}
