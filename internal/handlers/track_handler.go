package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/narfbach/music-cave/backend/internal/middleware"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/services"
)

// TrackHandler handles the music feed: sharing tracks, liking them, and
// their comment threads.
type TrackHandler struct {
	tracks   *services.TrackService
	likes    *services.LikeService
	comments *services.CommentService
	validate *validator.Validate
}

func NewTrackHandler(tracks *services.TrackService, likes *services.LikeService, comments *services.CommentService) *TrackHandler {
	return &TrackHandler{tracks: tracks, likes: likes, comments: comments, validate: validator.New()}
}

// RegisterPublicRoutes registers the routes anyone can read.
func (h *TrackHandler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/tracks", h.GetFeed)
	g.GET("/tracks/:id", h.GetTrack)
	g.GET("/tracks/:id/comments", h.GetComments)
}

// RegisterProtectedRoutes registers the routes that require a signed-in
// member.
func (h *TrackHandler) RegisterProtectedRoutes(g *echo.Group) {
	g.POST("/tracks", h.SubmitTrack)
	g.POST("/tracks/:id/like", h.ToggleLike)
	g.POST("/tracks/:id/comments", h.AddComment)
	g.GET("/me/likes", h.GetLikedTracks)
}

// GetFeed returns the latest tracks, newest first.
func (h *TrackHandler) GetFeed(c echo.Context) error {
	tracks, err := h.tracks.Feed(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tracks)
}

// GetTrack returns one track.
func (h *TrackHandler) GetTrack(c echo.Context) error {
	track, err := h.tracks.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, track)
}

// SubmitTrack shares a new track.
func (h *TrackHandler) SubmitTrack(c echo.Context) error {
	var req models.SubmitTrackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	track, err := h.tracks.Submit(c.Request().Context(), middleware.CurrentUser(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, track)
}

// ToggleLike likes or unlikes the track for the caller and returns the new
// state and count.
func (h *TrackHandler) ToggleLike(c echo.Context) error {
	liked, likes, err := h.likes.Toggle(c.Request().Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"liked": liked, "likes": likes})
}

// GetLikedTracks returns the caller's liked track ids for this session.
func (h *TrackHandler) GetLikedTracks(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not signed in")
	}
	return c.JSON(http.StatusOK, map[string]any{"track_ids": h.likes.LikedTracks(user.ID)})
}

// GetComments returns the track's latest comments plus the total count.
func (h *TrackHandler) GetComments(c echo.Context) error {
	ctx := c.Request().Context()
	trackID := c.Param("id")

	comments, err := h.comments.List(ctx, trackID)
	if err != nil {
		return httpError(err)
	}
	count, err := h.comments.Count(ctx, trackID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"comments": comments, "count": count})
}

// AddComment posts a comment on the track.
func (h *TrackHandler) AddComment(c echo.Context) error {
	var req models.AddCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	comment, err := h.comments.Add(c.Request().Context(), middleware.CurrentUser(c), c.Param("id"), req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, comment)
}
