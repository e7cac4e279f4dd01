package models

import (
	"time"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// Notification types.
const (
	NotificationLike    = "like"
	NotificationComment = "comment"
)

// CommentExcerptLen is how much of a comment a notification quotes before
// truncating with an ellipsis.
const CommentExcerptLen = 50

// Notification tells a track owner someone liked or commented on their
// track. Created only when the actor is not the owner; mutated once
// (read=true) when opened; never deleted.
type Notification struct {
	ID           string    `json:"id"`
	RecipientID  string    `json:"user_id"`
	Type         string    `json:"type"`
	TrackID      string    `json:"track_id"`
	TrackTitle   string    `json:"track_title"`
	FromUserID   string    `json:"from_user_id"`
	FromUsername string    `json:"from_username"`
	CommentText  string    `json:"comment_text,omitempty"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

// CommentExcerpt shortens text for a comment notification.
func CommentExcerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= CommentExcerptLen {
		return text
	}
	return string(runes[:CommentExcerptLen]) + "..."
}

// NotificationFromRecord decodes a gateway record into a Notification.
func NotificationFromRecord(id string, data map[string]any) Notification {
	return Notification{
		ID:           id,
		RecipientID:  gateway.AsString(data["user_id"]),
		Type:         gateway.AsString(data["type"]),
		TrackID:      gateway.AsString(data["track_id"]),
		TrackTitle:   gateway.AsString(data["track_title"]),
		FromUserID:   gateway.AsString(data["from_user_id"]),
		FromUsername: DisplayName(gateway.AsString(data["from_username"])),
		CommentText:  gateway.AsString(data["comment_text"]),
		Read:         gateway.AsBool(data["read"]),
		CreatedAt:    gateway.AsTime(data["created_at"]),
	}
}

// Record encodes the notification for insertion.
func (n Notification) Record() map[string]any {
	rec := map[string]any{
		"user_id":       n.RecipientID,
		"type":          n.Type,
		"track_id":      n.TrackID,
		"track_title":   n.TrackTitle,
		"from_user_id":  n.FromUserID,
		"from_username": n.FromUsername,
		"read":          n.Read,
		"created_at":    n.CreatedAt,
	}
	if n.CommentText != "" {
		rec["comment_text"] = n.CommentText
	}
	return rec
}
