package services

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/realtime"
)

const (
	// NotificationQueryLimit bounds the subscription query.
	NotificationQueryLimit = 50
	// NotificationPanelLimit is the client-side cap on the rendered panel.
	NotificationPanelLimit = 20
)

// NotificationService creates and lists per-user notifications. Creation
// enforces the one invariant that matters: no self-notification — a like or
// comment on your own track produces nothing.
type NotificationService struct {
	gw  gateway.Gateway
	log *zap.Logger
}

func NewNotificationService(gw gateway.Gateway, log *zap.Logger) *NotificationService {
	return &NotificationService{gw: gw, log: log.Named("notifications")}
}

// CreateForLike records a like notification for the track owner, and queues
// a push for it. No-op when the actor owns the track.
func (s *NotificationService) CreateForLike(ctx context.Context, actor *models.UserProfile, track models.Track) error {
	return s.create(ctx, actor, track, models.NotificationLike, "")
}

// CreateForComment records a comment notification with a short excerpt.
func (s *NotificationService) CreateForComment(ctx context.Context, actor *models.UserProfile, track models.Track, text string) error {
	return s.create(ctx, actor, track, models.NotificationComment, models.CommentExcerpt(text))
}

func (s *NotificationService) create(ctx context.Context, actor *models.UserProfile, track models.Track, kind, excerpt string) error {
	if actor == nil || track.UserID == "" || track.UserID == actor.ID {
		return nil
	}

	n := models.Notification{
		RecipientID:  track.UserID,
		Type:         kind,
		TrackID:      track.ID,
		TrackTitle:   track.Title,
		FromUserID:   actor.ID,
		FromUsername: actor.DisplayName(),
		CommentText:  excerpt,
		Read:         false,
		CreatedAt:    time.Now().UTC(),
	}
	id, err := s.gw.Insert(ctx, gateway.CollectionNotifications, n.Record())
	if err != nil {
		return err
	}
	n.ID = id

	// Queue the push; delivery is the sender's problem.
	if _, err := s.gw.Insert(ctx, gateway.CollectionPushQueue, pushQueueRecord(n)); err != nil {
		s.log.Warn("push enqueue failed", zap.String("notification", id), zap.Error(err))
	}
	return nil
}

func pushQueueRecord(n models.Notification) map[string]any {
	rec := map[string]any{
		"user_id":       n.RecipientID,
		"type":          n.Type,
		"track_id":      n.TrackID,
		"track_title":   n.TrackTitle,
		"from_username": n.FromUsername,
		"processed":     false,
		"created_at":    n.CreatedAt,
	}
	if n.CommentText != "" {
		rec["comment_text"] = n.CommentText
	}
	return rec
}

func notificationsQuery(recipientID string) gateway.Query {
	// No OrderBy: the original query skipped it to avoid a composite index,
	// sorting client-side instead.
	return gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("user_id", recipientID)},
		Limit:   NotificationQueryLimit,
	}
}

// List returns the recipient's panel: newest first, capped at 20.
func (s *NotificationService) List(ctx context.Context, recipientID string) ([]models.Notification, error) {
	changes, err := s.gw.Query(ctx, gateway.CollectionNotifications, notificationsQuery(recipientID))
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(changes))
	for _, ch := range changes {
		out = append(out, models.NotificationFromRecord(ch.ID, ch.Data))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > NotificationPanelLimit {
		out = out[:NotificationPanelLimit]
	}
	return out, nil
}

// UnreadCount counts the recipient's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	notifs, err := s.List(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range notifs {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// BadgeText formats an unread count for the bell badge, capping at "9+".
func BadgeText(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > 9:
		return "9+"
	default:
		return strconv.Itoa(unread)
	}
}

// MarkRead flips one notification to read. Notifications are never deleted.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	return s.gw.Update(ctx, gateway.CollectionNotifications, id, map[string]any{"read": true})
}

// MarkAllRead flips every unread notification for the recipient.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) error {
	notifs, err := s.List(ctx, recipientID)
	if err != nil {
		return err
	}
	for _, n := range notifs {
		if n.Read {
			continue
		}
		if err := s.MarkRead(ctx, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// Synchronizer builds the recipient's realtime notification view. Removal
// events are not tracked for notifications; they are never deleted, so the
// dedup cache only ever grows with the panel.
func (s *NotificationService) Synchronizer(recipientID string, renderer realtime.Renderer) *realtime.Synchronizer {
	return realtime.New(s.gw, renderer, realtime.Options{
		Collection:            gateway.CollectionNotifications,
		Query:                 notificationsQuery(recipientID),
		LivePlacement:         realtime.PrependTop,
		ChronologicalSnapshot: false,
	}, s.log)
}
