package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/narfbach/music-cave/backend/internal/middleware"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/services"
)

// UserHandler serves member profiles and push-token registration.
type UserHandler struct {
	profiles *services.ProfileService
	validate *validator.Validate
}

func NewUserHandler(profiles *services.ProfileService) *UserHandler {
	return &UserHandler{profiles: profiles, validate: validator.New()}
}

// RegisterPublicRoutes registers public profile reads.
func (h *UserHandler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/users/:id", h.GetProfile)
}

// RegisterProtectedRoutes registers the caller's own profile routes.
func (h *UserHandler) RegisterProtectedRoutes(g *echo.Group) {
	g.GET("/me", h.GetMe)
	g.PUT("/me", h.UpdateMe)
	g.POST("/me/fcm-token", h.RegisterFCMToken)
}

// GetProfile returns one member's public profile.
func (h *UserHandler) GetProfile(c echo.Context) error {
	profile, err := h.profiles.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	// Token lists stay private.
	profile.FCMTokens = nil
	return c.JSON(http.StatusOK, profile)
}

// GetMe returns the caller's own profile.
func (h *UserHandler) GetMe(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not signed in")
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateMe applies profile edits.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not signed in")
	}

	var req models.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.profiles.Update(c.Request().Context(), user.ID, req); err != nil {
		return httpError(err)
	}
	profile, err := h.profiles.Get(c.Request().Context(), user.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, profile)
}

type registerTokenRequest struct {
	Token string `json:"token" validate:"required,min=10"`
}

// RegisterFCMToken stores a device token for push delivery and turns
// notifications on for the caller.
func (h *UserHandler) RegisterFCMToken(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not signed in")
	}

	var req registerTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.profiles.RegisterFCMToken(c.Request().Context(), user.ID, req.Token); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
