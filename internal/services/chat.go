package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/realtime"
)

// ChatHistoryLimit is how far back the chat loads on open.
const ChatHistoryLimit = 50

// ChatService is the cave chat: append-only messages, admin deletion, a
// chronological window of the latest history.
type ChatService struct {
	gw  gateway.Gateway
	log *zap.Logger
}

func NewChatService(gw gateway.Gateway, log *zap.Logger) *ChatService {
	return &ChatService{gw: gw, log: log.Named("chat")}
}

func chatQuery() gateway.Query {
	return gateway.Query{OrderBy: "created_at", Desc: true, Limit: ChatHistoryLimit}
}

// History returns the latest window in chronological order, oldest first.
func (s *ChatService) History(ctx context.Context) ([]models.Message, error) {
	changes, err := s.gw.Query(ctx, gateway.CollectionMessages, chatQuery())
	if err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(changes))
	for i := len(changes) - 1; i >= 0; i-- {
		msgs = append(msgs, models.MessageFromRecord(changes[i].ID, changes[i].Data))
	}
	return msgs, nil
}

// Send posts a message. The nick is normalized the way the chat always
// stored it; user may be nil for anonymous nicks.
func (s *ChatService) Send(ctx context.Context, user *models.UserProfile, nick, body string) (models.Message, error) {
	msg := models.Message{
		Username:  models.NormalizeNick(nick),
		Body:      strings.TrimSpace(body),
		CreatedAt: time.Now().UTC(),
	}
	if msg.Username == "" {
		return models.Message{}, gateway.RejectWrite("a nick is required")
	}
	if msg.Body == "" {
		return models.Message{}, gateway.RejectWrite("empty message")
	}
	if user != nil {
		msg.UserID = user.ID
		msg.IsAdmin = user.IsAdmin
		msg.PhotoURL = user.PhotoURL
	}

	id, err := s.gw.Insert(ctx, gateway.CollectionMessages, msg.Record())
	if err != nil {
		return models.Message{}, err
	}
	msg.ID = id
	return msg, nil
}

// Delete removes a message. Admins can delete anything, owners their own.
func (s *ChatService) Delete(ctx context.Context, actor *models.UserProfile, messageID string) error {
	if actor == nil {
		return gateway.RejectWrite("not signed in")
	}

	rec, err := s.gw.Get(ctx, gateway.CollectionMessages, messageID)
	if err != nil {
		// Deleting an already-deleted message is benign.
		return err
	}
	msg := models.MessageFromRecord(messageID, rec)
	if !actor.IsAdmin && (msg.UserID == "" || msg.UserID != actor.ID) {
		return gateway.RejectWrite("only admins can delete other people's messages")
	}
	return s.gw.Delete(ctx, gateway.CollectionMessages, messageID)
}

// Synchronizer builds the chat's realtime view: latest window reversed to
// read order, live messages appended at the bottom.
func (s *ChatService) Synchronizer(renderer realtime.Renderer) *realtime.Synchronizer {
	return realtime.New(s.gw, renderer, realtime.Options{
		Collection:            gateway.CollectionMessages,
		Query:                 chatQuery(),
		LivePlacement:         realtime.AppendBottom,
		ChronologicalSnapshot: true,
	}, s.log)
}
