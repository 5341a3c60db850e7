package authcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/redis/go-redis/v9"
	yall "yall.in"
)

// DefaultSessionTTL is how long an idle session lives. Loading a session
// starts its TTL over.
const DefaultSessionTTL = 24 * time.Hour

// RedisSessions keeps sessions in Redis, so any instance behind a load
// balancer can complete a login another one started.
type RedisSessions struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	cookie    CookieOptions
}

// storedSession is the JSON value kept under a session key.
type storedSession struct {
	Identity  *Identity `json:"identity,omitempty"`
	CreatedIP string    `json:"created_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRedisSessions returns a RedisSessions using client. Keys are
// keyPrefix + session ID; a zero ttl means DefaultSessionTTL.
func NewRedisSessions(client redis.UniversalClient, keyPrefix string, ttl time.Duration, cookie CookieOptions) *RedisSessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessions{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		cookie:    cookie.withDefaults(),
	}
}

func (rs *RedisSessions) key(id string) string {
	return rs.keyPrefix + id
}

// Load implements SessionStore.
func (rs *RedisSessions) Load(r *http.Request) (Session, error) {
	if s := sessionFromContext(r.Context()); s != nil {
		return s, nil
	}
	id := rs.cookie.sessionID(r)
	if id == "" {
		return nil, nil
	}
	raw, err := rs.client.GetEx(r.Context(), rs.key(id), rs.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	var data storedSession
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &redisSession{store: rs, id: id, data: data}, nil
}

// Handler makes sure every request reaching next has a session, starting a
// new one when the client did not present a known session cookie.
func (rs *RedisSessions) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := rs.Load(r)
		if err == nil && s == nil {
			s, err = rs.create(r)
			if err == nil {
				http.SetCookie(w, rs.cookie.cookie(s.ID()))
			}
		}
		if err != nil {
			yall.FromContext(r.Context()).WithError(err).Error("error starting session")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(sessionInContext(r.Context(), s)))
	})
}

func (rs *RedisSessions) create(r *http.Request) (*redisSession, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("generating session ID: %w", err)
	}
	s := &redisSession{
		store: rs,
		id:    id,
		data:  storedSession{CreatedIP: clientIP(r), CreatedAt: time.Now()},
	}
	if err := s.save(r.Context()); err != nil {
		return nil, err
	}
	return s, nil
}

type redisSession struct {
	store *RedisSessions
	id    string
	data  storedSession
}

func (s *redisSession) ID() string {
	return s.id
}

func (s *redisSession) Identity() *Identity {
	return s.data.Identity
}

func (s *redisSession) SetIdentity(ctx context.Context, identity *Identity) error {
	s.data.Identity = identity
	return s.save(ctx)
}

func (s *redisSession) save(ctx context.Context) error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.store.client.Set(ctx, s.store.key(s.id), raw, s.store.ttl).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// Regenerate moves the session data to a new key and deletes the old one in
// a single transaction.
func (s *redisSession) Regenerate(ctx context.Context, w http.ResponseWriter) error {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Errorf("generating session ID: %w", err)
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	oldKey, newKey := s.store.key(s.id), s.store.key(id)
	_, err = s.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, oldKey)
		pipe.Set(ctx, newKey, raw, s.store.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("regenerating session: %w", err)
	}
	s.id = id
	http.SetCookie(w, s.store.cookie.cookie(id))
	return nil
}
