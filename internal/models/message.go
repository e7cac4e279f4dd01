package models

import (
	"strings"
	"time"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// Message is one chat message. Immutable once created; privileged users can
// delete any message, owners their own.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username"`
	Body      string    `json:"message"`
	IsAdmin   bool      `json:"is_admin"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the request body for posting to the chat.
type SendMessageRequest struct {
	Username string `json:"username" validate:"required,min=1,max=30"`
	Message  string `json:"message" validate:"required,min=1,max=500"`
}

// NormalizeNick trims and upper-cases a chat nick, the way the chat input
// always stored it.
func NormalizeNick(nick string) string {
	return strings.ToUpper(strings.TrimSpace(nick))
}

// MessageFromRecord decodes a gateway record into a Message.
func MessageFromRecord(id string, data map[string]any) Message {
	return Message{
		ID:        id,
		UserID:    gateway.AsString(data["user_id"]),
		Username:  DisplayName(gateway.AsString(data["username"])),
		Body:      gateway.AsString(data["message"]),
		IsAdmin:   gateway.AsBool(data["is_admin"]),
		PhotoURL:  gateway.AsString(data["photo_url"]),
		CreatedAt: gateway.AsTime(data["created_at"]),
	}
}

// Record encodes the message for insertion.
func (m Message) Record() map[string]any {
	return map[string]any{
		"user_id":    m.UserID,
		"username":   m.Username,
		"message":    m.Body,
		"is_admin":   m.IsAdmin,
		"photo_url":  m.PhotoURL,
		"created_at": m.CreatedAt,
	}
}
