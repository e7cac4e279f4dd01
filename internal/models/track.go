package models

import (
	"time"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// Platforms a track can be embedded from.
const (
	PlatformSpotify    = "spotify"
	PlatformYoutube    = "youtube"
	PlatformSoundcloud = "soundcloud"
)

// ValidPlatform reports whether p is an accepted embed platform.
func ValidPlatform(p string) bool {
	return p == PlatformSpotify || p == PlatformYoutube || p == PlatformSoundcloud
}

// Track is one shared track in the music feed. Likes is the only field that
// mutates after creation; tracks are never deleted from the feed.
type Track struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Platform    string    `json:"platform"`
	URL         string    `json:"url"`
	EmbedURL    string    `json:"embed_url"`
	SubmittedBy string    `json:"submitted_by"`
	Likes       int64     `json:"likes"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmitTrackRequest is the request body for sharing a track.
type SubmitTrackRequest struct {
	Title    string `json:"title" validate:"required,min=1,max=200"`
	Artist   string `json:"artist" validate:"required,min=1,max=200"`
	Platform string `json:"platform" validate:"required,oneof=spotify youtube soundcloud"`
	URL      string `json:"url" validate:"required,url"`
	EmbedURL string `json:"embed_url" validate:"required,url"`
}

// TrackFromRecord decodes a gateway record into a Track.
func TrackFromRecord(id string, data map[string]any) Track {
	return Track{
		ID:          id,
		UserID:      gateway.AsString(data["user_id"]),
		Title:       gateway.AsString(data["title"]),
		Artist:      gateway.AsString(data["artist"]),
		Platform:    gateway.AsString(data["platform"]),
		URL:         gateway.AsString(data["url"]),
		EmbedURL:    gateway.AsString(data["embed_url"]),
		SubmittedBy: DisplayName(gateway.AsString(data["submitted_by"])),
		Likes:       gateway.AsInt(data["likes"]),
		CreatedAt:   gateway.AsTime(data["created_at"]),
	}
}

// Record encodes the track for insertion.
func (t Track) Record() map[string]any {
	return map[string]any{
		"user_id":      t.UserID,
		"title":        t.Title,
		"artist":       t.Artist,
		"platform":     t.Platform,
		"url":          t.URL,
		"embed_url":    t.EmbedURL,
		"submitted_by": t.SubmittedBy,
		"likes":        t.Likes,
		"created_at":   t.CreatedAt,
	}
}
