package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// httpError maps gateway errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	case gateway.IsWriteRejected(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrBackendUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Backend is not ready yet")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
