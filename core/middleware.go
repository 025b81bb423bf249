package core

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

const sessionName = "onephoto_session"

const (
	contextSessionKey   = "session"
	contextUserKey      = "display_username"
	contextRequestIDKey = "request_id"
	requestIDHeader     = "X-Request-ID"
)

// SessionMiddleware loads the caller's session and exposes it to handlers as
// a *SessionHandle. Anonymous sessions are not persisted.
func SessionMiddleware(cfg Config, store *RedisStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, sessionName)
		if err != nil {
			logrus.WithError(err).WithField(contextRequestIDKey, c.GetString(contextRequestIDKey)).Error("load session")
			renderFailure(c, http.StatusServiceUnavailable)
			c.Abort()
			return
		}
		applySessionOptions(cfg, session)

		c.Set(contextSessionKey, &SessionHandle{
			cfg:     cfg,
			store:   store,
			session: session,
			r:       c.Request,
			w:       c.Writer,
		})
		c.Next()
	}
}

// RequireLogin redirects to /login unless the session is authenticated.
// On success the display username is available under contextUserKey.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := sessionFrom(c).DisplayUsername()
		if !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Set(contextUserKey, name)
		c.Next()
	}
}

// RequestLogger tags each request with an id and logs its outcome.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Header(requestIDHeader, id)

		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			contextRequestIDKey: id,
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"status":            c.Writer.Status(),
			"latency_ms":        time.Since(start).Milliseconds(),
			"client_ip":         c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Info("request")
	}
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = cfg.SessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
