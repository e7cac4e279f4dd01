package models

import (
	"time"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// CommentDisplayLimit caps how many comments a track card shows, newest
// first.
const CommentDisplayLimit = 10

// Comment belongs to exactly one track.
type Comment struct {
	ID        string    `json:"id"`
	TrackID   string    `json:"track_id"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// AddCommentRequest is the request body for commenting on a track.
type AddCommentRequest struct {
	Text string `json:"text" validate:"required,min=1,max=200"`
}

// CommentFromRecord decodes a gateway record into a Comment.
func CommentFromRecord(id string, data map[string]any) Comment {
	return Comment{
		ID:        id,
		TrackID:   gateway.AsString(data["track_id"]),
		UserID:    gateway.AsString(data["user_id"]),
		Username:  DisplayName(gateway.AsString(data["username"])),
		Text:      gateway.AsString(data["text"]),
		CreatedAt: gateway.AsTime(data["created_at"]),
	}
}

// Record encodes the comment for insertion.
func (c Comment) Record() map[string]any {
	return map[string]any{
		"track_id":   c.TrackID,
		"user_id":    c.UserID,
		"username":   c.Username,
		"text":       c.Text,
		"created_at": c.CreatedAt,
	}
}
