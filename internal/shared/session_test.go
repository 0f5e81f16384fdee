package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "test_session", time.Hour, false), mr
}

func TestSessionIssueAndLookup(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Issue(ctx, "u-1", "Manager")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.True(t, mr.Exists("session:"+sess.ID))

	loaded, err := sm.Lookup(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "u-1", loaded.UserID)
	assert.Equal(t, "Manager", loaded.Role)
	assert.False(t, loaded.Expired(time.Now()))

	require.NoError(t, sm.Destroy(ctx, sess.ID))
	_, err = sm.Lookup(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiresWithTTL(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	sess, err := sm.Issue(context.Background(), "u-1", "Employee")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = sm.Lookup(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionCorruptPayload(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	require.NoError(t, mr.Set("session:abc", "{not json"))
	_, err := sm.Lookup(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrSessionCorrupt)
}

func TestSessionCookies(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := sm.Token(req)
	assert.False(t, ok)

	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "token-1"})
	token, ok := sm.Token(req)
	assert.True(t, ok)
	assert.Equal(t, "token-1", token)

	res := httptest.NewRecorder()
	sm.ClearCookie(res)
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sm.CookieName(), cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestCSRFToken(t *testing.T) {
	m := NewCSRFManager("secret")
	token := m.Token("session-1")
	assert.NoError(t, m.VerifyToken("session-1", token))
	assert.ErrorIs(t, m.VerifyToken("session-2", token), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken("session-1", ""), ErrCSRFTokenMissing)
	assert.NotEqual(t, token, NewCSRFManager("other").Token("session-1"))
}

func TestNormalizePage(t *testing.T) {
	page, size := NormalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, size)
	_, size = NormalizePage(3, 500)
	assert.Equal(t, MaxPageSize, size)

	p := NewPagination(2, 20, true)
	assert.Equal(t, 1, p.PrevPage)
	assert.Equal(t, 3, p.NextPage)
}
