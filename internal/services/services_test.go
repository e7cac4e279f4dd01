package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
	"github.com/narfbach/music-cave/backend/internal/models"
)

type fixture struct {
	gw            *gateway.Memory
	profiles      *ProfileService
	notifications *NotificationService
	chat          *ChatService
	tracks        *TrackService
	likes         *LikeService
	comments      *CommentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	gw := gateway.NewMemory()
	notifications := NewNotificationService(gw, log)
	return &fixture{
		gw:            gw,
		profiles:      NewProfileService(gw, log),
		notifications: notifications,
		chat:          NewChatService(gw, log),
		tracks:        NewTrackService(gw, log),
		likes:         NewLikeService(gw, notifications, log),
		comments:      NewCommentService(gw, notifications, log),
	}
}

func (f *fixture) member(t *testing.T, id, username string) *models.UserProfile {
	t.Helper()
	profile, err := f.profiles.Ensure(context.Background(), id, id+"@example.com", username, "")
	require.NoError(t, err)
	return &profile
}

func (f *fixture) share(t *testing.T, owner *models.UserProfile, title string) models.Track {
	t.Helper()
	track, err := f.tracks.Submit(context.Background(), owner, models.SubmitTrackRequest{
		Title:    title,
		Artist:   "Unknown Artist",
		Platform: models.PlatformSoundcloud,
		URL:      "https://soundcloud.com/x/" + title,
		EmbedURL: "https://w.soundcloud.com/player/x",
	})
	require.NoError(t, err)
	return track
}

func TestChatSendNormalizesAndValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.chat.Send(ctx, nil, "  digger ", " hello cave ")
	require.NoError(t, err)
	assert.Equal(t, "DIGGER", msg.Username)
	assert.Equal(t, "hello cave", msg.Body)
	assert.NotEmpty(t, msg.ID)

	_, err = f.chat.Send(ctx, nil, "   ", "hi")
	assert.True(t, gateway.IsWriteRejected(err))
	_, err = f.chat.Send(ctx, nil, "nick", "   ")
	assert.True(t, gateway.IsWriteRejected(err))
}

func TestChatHistoryIsChronological(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		_, err := f.chat.Send(ctx, nil, "nick", body)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	msgs, err := f.chat.History(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "third", msgs[2].Body)
}

func TestChatDeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.member(t, "owner", "owner")
	stranger := f.member(t, "stranger", "stranger")
	admin := f.member(t, "admin", "admin")
	admin.IsAdmin = true

	msg, err := f.chat.Send(ctx, owner, "owner", "mine")
	require.NoError(t, err)

	assert.True(t, gateway.IsWriteRejected(f.chat.Delete(ctx, nil, msg.ID)))
	assert.True(t, gateway.IsWriteRejected(f.chat.Delete(ctx, stranger, msg.ID)))

	require.NoError(t, f.chat.Delete(ctx, owner, msg.ID))
	assert.ErrorIs(t, f.chat.Delete(ctx, owner, msg.ID), gateway.ErrNotFound)

	msg2, err := f.chat.Send(ctx, stranger, "stranger", "theirs")
	require.NoError(t, err)
	require.NoError(t, f.chat.Delete(ctx, admin, msg2.ID))
}

func TestSubmitTrackCreditsTheDigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.member(t, "u1", "digger")

	track := f.share(t, owner, "deep cut")
	assert.Equal(t, int64(0), track.Likes)
	assert.Equal(t, "digger", track.SubmittedBy)

	profile, err := f.profiles.Get(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), profile.TracksSubmitted)
	assert.Equal(t, int64(models.ScorePerUpload), profile.DiggerScore)

	_, err = f.tracks.Submit(ctx, owner, models.SubmitTrackRequest{Platform: "bandcamp"})
	assert.True(t, gateway.IsWriteRejected(err))
	_, err = f.tracks.Submit(ctx, nil, models.SubmitTrackRequest{Platform: models.PlatformSpotify})
	assert.True(t, gateway.IsWriteRejected(err))
}

func TestLikeToggleMovesCountersAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.member(t, "owner", "owner")
	fan := f.member(t, "fan", "fan")
	track := f.share(t, owner, "banger")

	liked, likes, err := f.likes.Toggle(ctx, fan, track.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), likes)
	assert.True(t, f.likes.Liked(fan.ID, track.ID))

	ownerProfile, err := f.profiles.Get(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ownerProfile.TotalLikes)
	assert.Equal(t, int64(models.ScorePerUpload+models.ScorePerLike), ownerProfile.DiggerScore)

	notifs, err := f.notifications.List(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, models.NotificationLike, notifs[0].Type)
	assert.Equal(t, "banger", notifs[0].TrackTitle)
	assert.Equal(t, "fan", notifs[0].FromUsername)

	// Unlike reverses the counters and leaves the notification alone.
	liked, likes, err = f.likes.Toggle(ctx, fan, track.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, int64(0), likes)
	assert.False(t, f.likes.Liked(fan.ID, track.ID))

	ownerProfile, err = f.profiles.Get(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ownerProfile.TotalLikes)

	notifs, err = f.notifications.List(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, notifs, 1)
}

func TestLikingYourOwnTrackDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.member(t, "owner", "owner")
	track := f.share(t, owner, "self promo")

	liked, _, err := f.likes.Toggle(ctx, owner, track.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	notifs, err := f.notifications.List(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, notifs)
}

func TestCommentNotifiesOwnerWithExcerpt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.member(t, "owner", "owner")
	fan := f.member(t, "fan", "fan")
	track := f.share(t, owner, "long jam")

	longText := "this is an extremely long comment that keeps going well past the excerpt cutoff point"
	comment, err := f.comments.Add(ctx, fan, track.ID, longText)
	require.NoError(t, err)
	assert.Equal(t, longText, comment.Text)

	notifs, err := f.notifications.List(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, models.NotificationComment, notifs[0].Type)
	assert.Equal(t, models.CommentExcerpt(longText), notifs[0].CommentText)
	assert.LessOrEqual(t, len([]rune(notifs[0].CommentText)), models.CommentExcerptLen+3)

	_, err = f.comments.Add(ctx, fan, track.ID, "   ")
	assert.True(t, gateway.IsWriteRejected(err))
	_, err = f.comments.Add(ctx, nil, track.ID, "anon")
	assert.True(t, gateway.IsWriteRejected(err))
}

func TestCommentListIsCappedNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.member(t, "owner", "owner")
	fan := f.member(t, "fan", "fan")
	track := f.share(t, owner, "thread")

	for i := 0; i < models.CommentDisplayLimit+5; i++ {
		_, err := f.comments.Add(ctx, fan, track.ID, "comment")
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	list, err := f.comments.List(ctx, track.ID)
	require.NoError(t, err)
	assert.Len(t, list, models.CommentDisplayLimit)

	count, err := f.comments.Count(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommentDisplayLimit+5, count)
}

func TestNotificationPanelSortsAndCaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.member(t, "owner", "owner")
	fan := f.member(t, "fan", "fan")

	for i := 0; i < NotificationPanelLimit+5; i++ {
		track := f.share(t, owner, "t")
		_, err := f.comments.Add(ctx, fan, track.ID, "nice")
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	notifs, err := f.notifications.List(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, notifs, NotificationPanelLimit)
	for i := 1; i < len(notifs); i++ {
		assert.False(t, notifs[i-1].CreatedAt.Before(notifs[i].CreatedAt), "panel is newest first")
	}
}

func TestMarkReadAndBadge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.member(t, "owner", "owner")
	fan := f.member(t, "fan", "fan")

	track := f.share(t, owner, "t")
	_, _, err := f.likes.Toggle(ctx, fan, track.ID)
	require.NoError(t, err)
	_, err = f.comments.Add(ctx, fan, track.ID, "hot")
	require.NoError(t, err)

	unread, err := f.notifications.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	notifs, err := f.notifications.List(ctx, owner.ID)
	require.NoError(t, err)
	require.NoError(t, f.notifications.MarkRead(ctx, notifs[0].ID))

	unread, err = f.notifications.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, f.notifications.MarkAllRead(ctx, owner.ID))
	unread, err = f.notifications.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestBadgeText(t *testing.T) {
	assert.Equal(t, "", BadgeText(0))
	assert.Equal(t, "", BadgeText(-1))
	assert.Equal(t, "4", BadgeText(4))
	assert.Equal(t, "9", BadgeText(9))
	assert.Equal(t, "9+", BadgeText(10))
	assert.Equal(t, "9+", BadgeText(42))
}

func TestProfileEnsureIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.profiles.Ensure(ctx, "u1", "jane@example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, "jane", first.Username, "username falls back to the email local part")

	again, err := f.profiles.Ensure(ctx, "u1", "jane@example.com", "changed", "")
	require.NoError(t, err)
	assert.Equal(t, first.Username, again.Username, "an existing profile is not overwritten")
}

func TestRegisterFCMTokenDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "u1", "digger")

	require.NoError(t, f.profiles.RegisterFCMToken(ctx, member.ID, "token-a"))
	require.NoError(t, f.profiles.RegisterFCMToken(ctx, member.ID, "token-a"))
	require.NoError(t, f.profiles.RegisterFCMToken(ctx, member.ID, "token-b"))

	profile, err := f.profiles.Get(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"token-a", "token-b"}, profile.FCMTokens)
	assert.True(t, profile.NotificationsEnabled)

	require.NoError(t, f.profiles.RemoveFCMTokens(ctx, member.ID, []string{"token-a"}))
	profile, err = f.profiles.Get(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"token-b"}, profile.FCMTokens)
}
