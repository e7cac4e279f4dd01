package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// HealthCheck reports liveness plus whether the backend gateway is ready.
func HealthCheck(gw gateway.Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"service": "music-cave",
			"backend": gw.Ready(),
		})
	}
}
