package models

import (
	"strings"
	"time"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// Digger score increments.
const (
	ScorePerUpload = 5
	ScorePerLike   = 1
)

// UserProfile is a cave member. DiggerScore grows with uploads and likes
// received; IsAdmin unlocks the privileged chat affordances.
type UserProfile struct {
	ID                   string    `json:"id"`
	Username             string    `json:"username"`
	Email                string    `json:"email"`
	PhotoURL             string    `json:"photo_url,omitempty"`
	IsAdmin              bool      `json:"is_admin"`
	DiggerScore          int64     `json:"digger_score"`
	TotalLikes           int64     `json:"total_likes"`
	TracksSubmitted      int64     `json:"tracks_submitted"`
	FCMTokens            []string  `json:"fcm_tokens,omitempty"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
}

// UpdateProfileRequest is the request body for profile edits.
type UpdateProfileRequest struct {
	Username string `json:"username,omitempty" validate:"omitempty,min=2,max=30"`
	PhotoURL string `json:"photo_url,omitempty" validate:"omitempty,url"`
}

// DisplayName strips the @domain suffix when a stored name is an email, so
// "jane@example.com" renders as "jane".
func DisplayName(name string) string {
	if at := strings.Index(name, "@"); at > 0 {
		return name[:at]
	}
	return name
}

// UserFromRecord decodes a gateway record into a UserProfile.
func UserFromRecord(id string, data map[string]any) UserProfile {
	var tokens []string
	switch v := data["fcm_tokens"].(type) {
	case []string:
		tokens = v
	case []any:
		for _, t := range v {
			tokens = append(tokens, gateway.AsString(t))
		}
	}
	return UserProfile{
		ID:                   id,
		Username:             gateway.AsString(data["username"]),
		Email:                gateway.AsString(data["email"]),
		PhotoURL:             gateway.AsString(data["photo_url"]),
		IsAdmin:              gateway.AsBool(data["is_admin"]),
		DiggerScore:          gateway.AsInt(data["digger_score"]),
		TotalLikes:           gateway.AsInt(data["total_likes"]),
		TracksSubmitted:      gateway.AsInt(data["tracks_submitted"]),
		FCMTokens:            tokens,
		NotificationsEnabled: gateway.AsBool(data["notifications_enabled"]),
		CreatedAt:            gateway.AsTime(data["created_at"]),
	}
}

// DisplayName returns the profile's renderable name, falling back to the
// email local part when no username was chosen.
func (u UserProfile) DisplayName() string {
	if u.Username != "" {
		return DisplayName(u.Username)
	}
	return DisplayName(u.Email)
}

// Record encodes the profile for insertion.
func (u UserProfile) Record() map[string]any {
	return map[string]any{
		"username":              u.Username,
		"email":                 u.Email,
		"photo_url":             u.PhotoURL,
		"is_admin":              u.IsAdmin,
		"digger_score":          u.DiggerScore,
		"total_likes":           u.TotalLikes,
		"tracks_submitted":      u.TracksSubmitted,
		"fcm_tokens":            u.FCMTokens,
		"notifications_enabled": u.NotificationsEnabled,
		"created_at":            u.CreatedAt,
	}
}
