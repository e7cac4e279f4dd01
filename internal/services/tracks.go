package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/models"
	"github.com/narfbach/music-cave/backend/internal/realtime"
)

// TrackFeedLimit is how many tracks the feed loads initially, newest first.
const TrackFeedLimit = 50

// TrackService is the music feed: submissions, the newest-first window,
// and the digger-score bookkeeping on upload.
type TrackService struct {
	gw  gateway.Gateway
	log *zap.Logger
}

func NewTrackService(gw gateway.Gateway, log *zap.Logger) *TrackService {
	return &TrackService{gw: gw, log: log.Named("tracks")}
}

func feedQuery() gateway.Query {
	return gateway.Query{OrderBy: "created_at", Desc: true, Limit: TrackFeedLimit}
}

// Feed returns the latest tracks, newest first.
func (s *TrackService) Feed(ctx context.Context) ([]models.Track, error) {
	changes, err := s.gw.Query(ctx, gateway.CollectionTracks, feedQuery())
	if err != nil {
		return nil, err
	}
	tracks := make([]models.Track, 0, len(changes))
	for _, ch := range changes {
		tracks = append(tracks, models.TrackFromRecord(ch.ID, ch.Data))
	}
	return tracks, nil
}

// Get returns one track.
func (s *TrackService) Get(ctx context.Context, id string) (models.Track, error) {
	rec, err := s.gw.Get(ctx, gateway.CollectionTracks, id)
	if err != nil {
		return models.Track{}, err
	}
	return models.TrackFromRecord(id, rec), nil
}

// Submit shares a new track and credits the submitter: tracks_submitted +1
// and digger_score +5, applied as server-side increments.
func (s *TrackService) Submit(ctx context.Context, user *models.UserProfile, req models.SubmitTrackRequest) (models.Track, error) {
	if user == nil {
		return models.Track{}, gateway.RejectWrite("you must be logged in to upload tracks")
	}
	if !models.ValidPlatform(req.Platform) {
		return models.Track{}, gateway.RejectWrite("unknown platform %q", req.Platform)
	}

	track := models.Track{
		UserID:      user.ID,
		Title:       req.Title,
		Artist:      req.Artist,
		Platform:    req.Platform,
		URL:         req.URL,
		EmbedURL:    req.EmbedURL,
		SubmittedBy: user.DisplayName(),
		Likes:       0,
		CreatedAt:   time.Now().UTC(),
	}
	id, err := s.gw.Insert(ctx, gateway.CollectionTracks, track.Record())
	if err != nil {
		return models.Track{}, err
	}
	track.ID = id

	err = s.gw.Update(ctx, gateway.CollectionUsers, user.ID, map[string]any{
		"tracks_submitted": gateway.Increment(1),
		"digger_score":     gateway.Increment(models.ScorePerUpload),
	})
	if err != nil {
		s.log.Warn("score update after upload failed", zap.String("user", user.ID), zap.Error(err))
	}

	return track, nil
}

// Synchronizer builds the feed's realtime view: newest-first snapshot kept
// top-first, live tracks prepended with the fresh highlight.
func (s *TrackService) Synchronizer(renderer realtime.Renderer) *realtime.Synchronizer {
	return realtime.New(s.gw, renderer, realtime.Options{
		Collection:    gateway.CollectionTracks,
		Query:         feedQuery(),
		LivePlacement: realtime.PrependTop,
	}, s.log)
}
