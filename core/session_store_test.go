package core

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

var testSessionKey = []byte("0123456789abcdef0123456789abcdef")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// requestWithCookies replays the cookies set on rec into a new request.
func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, 600, time.Second, testSessionKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.Get(req, sessionName)
	require.NoError(t, err)
	assert.True(t, sess.IsNew)

	sess.Values[sessionKeyLoggedIn] = true
	sess.Values[sessionKeyDisplayUsername] = "alice"
	rec := httptest.NewRecorder()
	require.NoError(t, sess.Save(req, rec))
	require.NotEmpty(t, sess.ID)

	assert.True(t, mr.Exists(sessionKeyPrefix+sess.ID))
	ttl := mr.TTL(sessionKeyPrefix + sess.ID)
	assert.Equal(t, 600*time.Second, ttl)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotContains(t, cookies[0].Value, "alice", "cookie must not carry session data")
	assert.True(t, cookies[0].HttpOnly)

	loaded, err := store.Get(requestWithCookies(rec), sessionName)
	require.NoError(t, err)
	assert.False(t, loaded.IsNew)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, true, loaded.Values[sessionKeyLoggedIn])
	assert.Equal(t, "alice", loaded.Values[sessionKeyDisplayUsername])
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, 60, time.Second, testSessionKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.Get(req, sessionName)
	require.NoError(t, err)
	sess.Values[sessionKeyLoggedIn] = true
	rec := httptest.NewRecorder()
	require.NoError(t, sess.Save(req, rec))

	mr.FastForward(61 * time.Second)

	loaded, err := store.Get(requestWithCookies(rec), sessionName)
	require.NoError(t, err)
	assert.True(t, loaded.IsNew)
	assert.Empty(t, loaded.Values)
}

func TestRedisStoreDestroy(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, 600, time.Second, testSessionKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.Get(req, sessionName)
	require.NoError(t, err)
	sess.Values[sessionKeyLoggedIn] = true
	rec := httptest.NewRecorder()
	require.NoError(t, sess.Save(req, rec))
	id := sess.ID

	sess.Options.MaxAge = -1
	rec2 := httptest.NewRecorder()
	require.NoError(t, sess.Save(req, rec2))
	assert.False(t, mr.Exists(sessionKeyPrefix+id))

	cookies := rec2.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0)

	// the old cookie no longer resolves
	loaded, err := store.Get(requestWithCookies(rec), sessionName)
	require.NoError(t, err)
	assert.True(t, loaded.IsNew)
}

func TestRedisStoreRejectsForgedCookie(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, 600, time.Second, testSessionKey)
	require.NoError(t, mr.Set(sessionKeyPrefix+"guessed", "x"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionName, Value: "guessed"})
	sess, err := store.Get(req, sessionName)
	require.NoError(t, err)
	assert.True(t, sess.IsNew)
	assert.Empty(t, sess.ID)

	other := NewRedisStore(client, 600, time.Second, []byte("another-key-another-key-another!"))
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	s2, err := other.Get(req2, sessionName)
	require.NoError(t, err)
	s2.Values[sessionKeyLoggedIn] = true
	rec := httptest.NewRecorder()
	require.NoError(t, s2.Save(req2, rec))

	sess, err = store.Get(requestWithCookies(rec), sessionName)
	require.NoError(t, err)
	assert.True(t, sess.IsNew, "cookie signed with another key must not resolve")
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, 600, time.Second, testSessionKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.Get(req, sessionName)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, sess.Save(req, rec))

	mr.Close()

	_, err = store.New(requestWithCookies(rec), sessionName)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Error(t, store.Ping(context.Background()))
}

func TestSessionHandleEstablishRotatesID(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, 600, time.Second, testSessionKey)
	cfg := Config{SessionMaxAge: 600, CookieSameSite: "Lax"}

	// a pre-existing anonymous-but-stored session, as a fixation attempt would plant
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	planted, err := store.Get(req, sessionName)
	require.NoError(t, err)
	planted.Values["note"] = "planted"
	rec := httptest.NewRecorder()
	require.NoError(t, planted.Save(req, rec))
	oldID := planted.ID

	req2 := requestWithCookies(rec)
	sess, err := store.Get(req2, sessionName)
	require.NoError(t, err)
	require.Equal(t, oldID, sess.ID)

	rec2 := httptest.NewRecorder()
	h := &SessionHandle{cfg: cfg, store: store, session: sess, r: req2, w: rec2}
	_, ok := h.DisplayUsername()
	assert.False(t, ok)

	require.NoError(t, h.Establish("alice"))
	assert.NotEqual(t, oldID, sess.ID)
	assert.False(t, mr.Exists(sessionKeyPrefix+oldID))
	assert.True(t, mr.Exists(sessionKeyPrefix+sess.ID))

	name, ok := h.DisplayUsername()
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
	_, planted2 := sess.Values["note"]
	assert.False(t, planted2)
}
