package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/models"
)

// ProfileService manages cave member profiles, keyed by auth uid.
type ProfileService struct {
	gw  gateway.Gateway
	log *zap.Logger
}

func NewProfileService(gw gateway.Gateway, log *zap.Logger) *ProfileService {
	return &ProfileService{gw: gw, log: log.Named("profiles")}
}

// Get fetches one profile.
func (s *ProfileService) Get(ctx context.Context, id string) (models.UserProfile, error) {
	rec, err := s.gw.Get(ctx, gateway.CollectionUsers, id)
	if err != nil {
		return models.UserProfile{}, err
	}
	return models.UserFromRecord(id, rec), nil
}

// Ensure returns the profile for an authenticated uid, creating a fresh one
// on first sight.
func (s *ProfileService) Ensure(ctx context.Context, id, email, username, photoURL string) (models.UserProfile, error) {
	profile, err := s.Get(ctx, id)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, gateway.ErrNotFound) {
		return models.UserProfile{}, err
	}

	if username == "" {
		username = models.DisplayName(email)
	}
	profile = models.UserProfile{
		ID:        id,
		Username:  username,
		Email:     email,
		PhotoURL:  photoURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.gw.Set(ctx, gateway.CollectionUsers, id, profile.Record()); err != nil {
		return models.UserProfile{}, err
	}
	s.log.Info("profile created", zap.String("user", id))
	return profile, nil
}

// Update applies profile edits.
func (s *ProfileService) Update(ctx context.Context, id string, req models.UpdateProfileRequest) error {
	patch := map[string]any{}
	if req.Username != "" {
		patch["username"] = req.Username
	}
	if req.PhotoURL != "" {
		patch["photo_url"] = req.PhotoURL
	}
	if len(patch) == 0 {
		return nil
	}
	return s.gw.Update(ctx, gateway.CollectionUsers, id, patch)
}

// RegisterFCMToken stores a device token for push delivery, once.
func (s *ProfileService) RegisterFCMToken(ctx context.Context, id, token string) error {
	profile, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, t := range profile.FCMTokens {
		if t == token {
			return nil
		}
	}
	tokens := append(profile.FCMTokens, token)
	return s.gw.Update(ctx, gateway.CollectionUsers, id, map[string]any{
		"fcm_tokens":            tokens,
		"notifications_enabled": true,
	})
}

// RemoveFCMTokens drops tokens the push service found to be dead.
func (s *ProfileService) RemoveFCMTokens(ctx context.Context, id string, dead []string) error {
	if len(dead) == 0 {
		return nil
	}
	profile, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	deadSet := make(map[string]bool, len(dead))
	for _, t := range dead {
		deadSet[t] = true
	}
	kept := profile.FCMTokens[:0]
	for _, t := range profile.FCMTokens {
		if !deadSet[t] {
			kept = append(kept, t)
		}
	}
	return s.gw.Update(ctx, gateway.CollectionUsers, id, map[string]any{"fcm_tokens": kept})
}
