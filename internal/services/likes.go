package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/models"
)

// LikeService toggles likes on tracks. Counters move as server-side atomic
// increments, so two simultaneous likers both land instead of one clobbering
// the other. The per-user liked set is session state, as it always was.
type LikeService struct {
	gw            gateway.Gateway
	notifications *NotificationService
	log           *zap.Logger

	mu    sync.Mutex
	liked map[string]map[string]bool // user id -> track id -> liked
}

func NewLikeService(gw gateway.Gateway, notifications *NotificationService, log *zap.Logger) *LikeService {
	return &LikeService{
		gw:            gw,
		notifications: notifications,
		log:           log.Named("likes"),
		liked:         make(map[string]map[string]bool),
	}
}

// Liked reports whether the user liked the track this session.
func (s *LikeService) Liked(userID, trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liked[userID][trackID]
}

// LikedTracks returns the user's liked set for rendering filled hearts.
func (s *LikeService) LikedTracks(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.liked[userID]))
	for id, on := range s.liked[userID] {
		if on {
			out = append(out, id)
		}
	}
	return out
}

// Toggle likes or unlikes a track for user and returns the new state and
// count. A like bumps the track counter and the owner's digger score by one
// and notifies the owner; an unlike reverses the counters and leaves any
// existing notification untouched.
func (s *LikeService) Toggle(ctx context.Context, user *models.UserProfile, trackID string) (liked bool, likes int64, err error) {
	if user == nil {
		return false, 0, gateway.RejectWrite("you must be logged in to like tracks")
	}

	rec, err := s.gw.Get(ctx, gateway.CollectionTracks, trackID)
	if err != nil {
		return false, 0, err
	}
	track := models.TrackFromRecord(trackID, rec)

	unliking := s.Liked(user.ID, trackID)
	delta := int64(1)
	if unliking {
		delta = -1
	}

	patch := map[string]any{"likes": gateway.Increment(delta)}
	if unliking && track.Likes <= 0 {
		// Counter already at the floor; don't drive it negative.
		patch = map[string]any{"likes": int64(0)}
	}
	if err := s.gw.Update(ctx, gateway.CollectionTracks, trackID, patch); err != nil {
		return unliking, track.Likes, err
	}

	if track.UserID != "" {
		err := s.gw.Update(ctx, gateway.CollectionUsers, track.UserID, map[string]any{
			"digger_score": gateway.Increment(delta * models.ScorePerLike),
			"total_likes":  gateway.Increment(delta),
		})
		if err != nil {
			s.log.Warn("owner score update failed", zap.String("track", trackID), zap.Error(err))
		}
	}

	s.mu.Lock()
	if s.liked[user.ID] == nil {
		s.liked[user.ID] = make(map[string]bool)
	}
	s.liked[user.ID][trackID] = !unliking
	s.mu.Unlock()

	if !unliking {
		if err := s.notifications.CreateForLike(ctx, user, track); err != nil {
			s.log.Warn("like notification failed", zap.String("track", trackID), zap.Error(err))
		}
	}

	newLikes := track.Likes + delta
	if newLikes < 0 {
		newLikes = 0
	}
	return !unliking, newLikes, nil
}
