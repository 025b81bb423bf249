package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	sessionKeyLoggedIn        = "loggedin"
	sessionKeyDisplayUsername = "display_username"
)

// SessionHandle is the current request's session with the read, establish
// and destroy operations the flows need.
type SessionHandle struct {
	cfg     Config
	store   *RedisStore
	session *sessions.Session
	r       *http.Request
	w       http.ResponseWriter
}

// DisplayUsername returns the greeting name of an authenticated session.
func (h *SessionHandle) DisplayUsername() (string, bool) {
	if h == nil || h.session == nil {
		return "", false
	}
	loggedIn, _ := h.session.Values[sessionKeyLoggedIn].(bool)
	if !loggedIn {
		return "", false
	}
	name, _ := h.session.Values[sessionKeyDisplayUsername].(string)
	return name, true
}

// Establish starts an authenticated session for username under a fresh id;
// any id the client arrived with is discarded.
func (h *SessionHandle) Establish(username string) error {
	if h.session.ID != "" {
		if err := h.store.Delete(h.r.Context(), h.session.ID); err != nil {
			return err
		}
		h.session.ID = ""
	}
	h.session.Values = map[interface{}]interface{}{
		sessionKeyLoggedIn:        true,
		sessionKeyDisplayUsername: username,
	}
	applySessionOptions(h.cfg, h.session)
	return h.session.Save(h.r, h.w)
}

// Destroy removes the stored session and expires the cookie.
func (h *SessionHandle) Destroy() error {
	h.session.Values = map[interface{}]interface{}{}
	applySessionOptions(h.cfg, h.session)
	h.session.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
	return h.session.Save(h.r, h.w)
}

func sessionFrom(c *gin.Context) *SessionHandle {
	v, _ := c.Get(contextSessionKey)
	h, _ := v.(*SessionHandle)
	return h
}
