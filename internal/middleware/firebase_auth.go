package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/services"
)

const currentUserKey = "currentUser"

// FirebaseAuth verifies Firebase ID tokens and resolves the caller's cave
// profile, creating one on first sight. Handlers read it back with
// CurrentUser.
func FirebaseAuth(authClient *auth.Client, profiles *services.ProfileService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is missing")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header must be in Bearer format")
			}

			ctx := c.Request().Context()
			token, err := authClient.VerifyIDToken(ctx, tokenParts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
			}

			email, _ := token.Claims["email"].(string)
			name, _ := token.Claims["name"].(string)
			picture, _ := token.Claims["picture"].(string)

			profile, err := profiles.Ensure(ctx, token.UID, email, name, picture)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load profile")
			}

			c.Set(currentUserKey, &profile)
			return next(c)
		}
	}
}

// CurrentUser returns the authenticated caller's profile, or nil on public
// routes.
func CurrentUser(c echo.Context) *models.UserProfile {
	if u, ok := c.Get(currentUserKey).(*models.UserProfile); ok {
		return u
	}
	return nil
}
