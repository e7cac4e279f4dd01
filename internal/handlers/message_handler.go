package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/narfbach/music-cave/backend/internal/middleware"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/services"
)

// MessageHandler handles the cave chat.
type MessageHandler struct {
	chat     *services.ChatService
	validate *validator.Validate
}

func NewMessageHandler(chat *services.ChatService) *MessageHandler {
	return &MessageHandler{chat: chat, validate: validator.New()}
}

// RegisterPublicRoutes registers read access to the chat.
func (h *MessageHandler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/chat", h.GetHistory)
}

// RegisterProtectedRoutes registers the write side.
func (h *MessageHandler) RegisterProtectedRoutes(g *echo.Group) {
	g.POST("/chat", h.SendMessage)
	g.DELETE("/chat/:id", h.DeleteMessage)
}

// GetHistory returns the latest chat window in chronological order.
func (h *MessageHandler) GetHistory(c echo.Context) error {
	msgs, err := h.chat.History(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

// SendMessage posts a chat message.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	var req models.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.chat.Send(c.Request().Context(), middleware.CurrentUser(c), req.Username, req.Message)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// DeleteMessage removes a message; admins any, owners their own.
func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	err := h.chat.Delete(c.Request().Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
