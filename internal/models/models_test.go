package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNick(t *testing.T) {
	assert.Equal(t, "DIGGER", NormalizeNick("  digger "))
	assert.Equal(t, "DJ KICKS", NormalizeNick("dj kicks"))
	assert.Equal(t, "", NormalizeNick("   "))
}

func TestDisplayNameStripsEmailDomain(t *testing.T) {
	assert.Equal(t, "jane", DisplayName("jane@example.com"))
	assert.Equal(t, "crate_digger", DisplayName("crate_digger"))
	// A leading @ is not an email.
	assert.Equal(t, "@handle", DisplayName("@handle"))
}

func TestUserDisplayNameFallsBackToEmail(t *testing.T) {
	u := UserProfile{Username: "digger", Email: "jane@example.com"}
	assert.Equal(t, "digger", u.DisplayName())

	u.Username = ""
	assert.Equal(t, "jane", u.DisplayName())

	u.Username = "nick@mail.com"
	assert.Equal(t, "nick", u.DisplayName())
}

func TestValidPlatform(t *testing.T) {
	assert.True(t, ValidPlatform(PlatformSpotify))
	assert.True(t, ValidPlatform(PlatformYoutube))
	assert.True(t, ValidPlatform(PlatformSoundcloud))
	assert.False(t, ValidPlatform("bandcamp"))
	assert.False(t, ValidPlatform(""))
}

func TestCommentExcerpt(t *testing.T) {
	short := "nice one"
	assert.Equal(t, short, CommentExcerpt(short))

	long := strings.Repeat("x", 80)
	got := CommentExcerpt(long)
	assert.Equal(t, strings.Repeat("x", 50)+"...", got)

	// Truncation counts runes, not bytes.
	multibyte := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50)+"...", CommentExcerpt(multibyte))
}

func TestUserFromRecordTokenShapes(t *testing.T) {
	u := UserFromRecord("u1", map[string]any{"fcm_tokens": []string{"a", "b"}})
	assert.Equal(t, []string{"a", "b"}, u.FCMTokens)

	u = UserFromRecord("u1", map[string]any{"fcm_tokens": []any{"a", "b"}})
	assert.Equal(t, []string{"a", "b"}, u.FCMTokens)

	u = UserFromRecord("u1", map[string]any{})
	assert.Empty(t, u.FCMTokens)
}
