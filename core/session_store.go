package core

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// RedisStore is a sessions.Store that keeps session values in Redis and puts
// only a signed, opaque session id in the cookie.
type RedisStore struct {
	client  redis.Cmdable
	codecs  []securecookie.Codec
	Options *sessions.Options
	timeout time.Duration
}

// NewRedisStore builds a store whose cookies are signed with keyPairs
// (see securecookie.CodecsFromPairs) and whose entries live maxAge seconds.
func NewRedisStore(client redis.Cmdable, maxAge int, timeout time.Duration, keyPairs ...[]byte) *RedisStore {
	s := &RedisStore{
		client: client,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
		},
		timeout: timeout,
	}
	for _, codec := range s.codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			sc.MaxAge(maxAge)
		}
	}
	return s
}

// Get returns the session for name, cached per request.
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie. A missing,
// forged or expired reference yields a fresh anonymous session with no error;
// only Redis failures are returned.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		return session, nil
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	values, err := s.Load(ctx, id)
	if err != nil {
		return session, err
	}
	if values == nil {
		return session, nil
	}
	session.ID = id
	session.Values = values
	session.IsNew = false
	return session, nil
}

// Save persists the session and writes its cookie. A negative MaxAge
// destroys the stored entry and expires the cookie.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.Delete(ctx, session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		session.ID = ""
		return nil
	}

	if session.ID == "" {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		session.ID = id
	}

	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if ttl == 0 {
		ttl = time.Duration(s.Options.MaxAge) * time.Second
	}
	if err := s.store(ctx, session.ID, session.Values, ttl); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Load returns the values stored under id, or nil when there is none.
func (s *RedisStore) Load(ctx context.Context, id string) (map[interface{}]interface{}, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: load session: %v", ErrStoreUnavailable, err)
	}
	values := make(map[interface{}]interface{})
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&values); err != nil {
		// unreadable entry; treat as no session
		return nil, nil
	}
	return values, nil
}

// Delete removes the session stored under id. Deleting a missing id is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) store(ctx context.Context, id string, values map[interface{}]interface{}, ttl time.Duration) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(values); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+id, buf.Bytes(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: save session: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func newSessionID() (string, error) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", errors.New("failed to generate session id")
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(key), "="), nil
}
