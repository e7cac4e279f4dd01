package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/models"
)

// CommentService handles track comments and the owner notification that
// goes with each one.
type CommentService struct {
	gw            gateway.Gateway
	notifications *NotificationService
	log           *zap.Logger
}

func NewCommentService(gw gateway.Gateway, notifications *NotificationService, log *zap.Logger) *CommentService {
	return &CommentService{gw: gw, notifications: notifications, log: log.Named("comments")}
}

// Add posts a comment and notifies the track owner (unless commenting on
// your own track).
func (s *CommentService) Add(ctx context.Context, user *models.UserProfile, trackID, text string) (models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, gateway.RejectWrite("empty comment")
	}
	if user == nil {
		return models.Comment{}, gateway.RejectWrite("you must be logged in to comment")
	}

	rec, err := s.gw.Get(ctx, gateway.CollectionTracks, trackID)
	if err != nil {
		return models.Comment{}, err
	}
	track := models.TrackFromRecord(trackID, rec)

	comment := models.Comment{
		TrackID:   trackID,
		UserID:    user.ID,
		Username:  user.DisplayName(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.gw.Insert(ctx, gateway.CollectionComments, comment.Record())
	if err != nil {
		return models.Comment{}, err
	}
	comment.ID = id

	if err := s.notifications.CreateForComment(ctx, user, track, text); err != nil {
		s.log.Warn("comment notification failed", zap.String("track", trackID), zap.Error(err))
	}
	return comment, nil
}

// List returns the latest comments for a track, newest first, capped at the
// display limit.
func (s *CommentService) List(ctx context.Context, trackID string) ([]models.Comment, error) {
	changes, err := s.gw.Query(ctx, gateway.CollectionComments, gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("track_id", trackID)},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   models.CommentDisplayLimit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0, len(changes))
	for _, ch := range changes {
		out = append(out, models.CommentFromRecord(ch.ID, ch.Data))
	}
	return out, nil
}

// Count returns the total number of comments on a track.
func (s *CommentService) Count(ctx context.Context, trackID string) (int, error) {
	changes, err := s.gw.Query(ctx, gateway.CollectionComments, gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("track_id", trackID)},
	})
	if err != nil {
		return 0, err
	}
	return len(changes), nil
}
