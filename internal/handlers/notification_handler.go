package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/narfbach/music-cave/backend/internal/middleware"
	"github.com/narfbach/music-cave/backend/internal/services"
)

// NotificationHandler serves the bell panel for the signed-in member.
type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// RegisterProtectedRoutes registers the notification routes. All of them
// require a signed-in member; notifications are private.
func (h *NotificationHandler) RegisterProtectedRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.POST("/notifications/:id/read", h.MarkRead)
	g.POST("/notifications/read-all", h.MarkAllRead)
}

// GetNotifications returns the caller's panel, newest first.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not signed in")
	}
	notifs, err := h.notifications.List(c.Request().Context(), user.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, notifs)
}

// GetUnreadCount returns the unread count plus the badge text the bell
// renders.
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not signed in")
	}
	unread, err := h.notifications.UnreadCount(c.Request().Context(), user.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"unread": unread,
		"badge":  services.BadgeText(unread),
	})
}

// MarkRead flips one notification to read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	if err := h.notifications.MarkRead(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead flips every unread notification for the caller.
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not signed in")
	}
	if err := h.notifications.MarkAllRead(c.Request().Context(), user.ID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
