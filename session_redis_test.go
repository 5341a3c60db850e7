package authcode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func newRedisSessions(t *testing.T) (*RedisSessions, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewRedisSessions(client, "test:session:", time.Minute, CookieOptions{}), mr
}

func TestRedisSessions(t *testing.T) {
	t.Parallel()

	store, mr := newRedisSessions(t)
	ctx := context.Background()

	var seen Session
	handler := store.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = sessionFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 203.0.113.7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	cookie := findCookie(w.Result(), DefaultSessionCookie)
	if cookie == nil || seen == nil || cookie.Value != seen.ID() {
		t.Fatalf("Expected cookie for the new session, got cookie %+v session %v", cookie, seen)
	}
	key := "test:session:" + cookie.Value
	if !mr.Exists(key) {
		t.Fatalf("Expected %s to be stored", key)
	}
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Errorf("Expected TTL %s, got %s", time.Minute, ttl)
	}
	if got := seen.(*redisSession).data.CreatedIP; got != "203.0.113.7" {
		t.Errorf("Expected created IP %q, got %q", "203.0.113.7", got)
	}

	identity := &Identity{Subject: "user-1", Email: "user@example.com", Issuer: "https://issuer.example.com"}
	if err := seen.SetIdentity(ctx, identity); err != nil {
		t.Fatalf("Unexpected error setting identity: %v", err)
	}

	w = httptest.NewRecorder()
	if err := seen.Regenerate(ctx, w); err != nil {
		t.Fatalf("Unexpected error regenerating session: %v", err)
	}
	regenerated := findCookie(w.Result(), DefaultSessionCookie)
	if regenerated == nil || regenerated.Value == cookie.Value {
		t.Fatalf("Expected a cookie with a new session ID, got %+v", regenerated)
	}
	if mr.Exists(key) {
		t.Errorf("Expected %s to be deleted", key)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(regenerated)
	s, err := store.Load(req)
	if err != nil || s == nil {
		t.Fatalf("Expected regenerated session to load, got %v, %v", s, err)
	}
	if diff := cmp.Diff(identity, s.Identity()); diff != "" {
		t.Errorf("Unexpected identity (-want +got):\n%s", diff)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if s, err := store.Load(req); err != nil || s != nil {
		t.Errorf("Expected old session ID to be gone, got %v, %v", s, err)
	}
}

func TestRedisSessionsCorrupt(t *testing.T) {
	t.Parallel()

	store, mr := newRedisSessions(t)
	if err := mr.Set("test:session:broken", "not json"); err != nil {
		t.Fatalf("Error seeding redis: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "broken"})
	if _, err := store.Load(req); err == nil {
		t.Error("Expected an error loading a corrupt session")
	}
}

func TestRedisSessionsSlidingTTL(t *testing.T) {
	t.Parallel()

	store, mr := newRedisSessions(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s, err := store.create(req)
	if err != nil {
		t.Fatalf("Error creating session: %v", err)
	}
	key := "test:session:" + s.ID()

	mr.FastForward(40 * time.Second)
	if ttl := mr.TTL(key); ttl != 20*time.Second {
		t.Fatalf("Expected TTL %s before loading, got %s", 20*time.Second, ttl)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: s.ID()})
	if loaded, err := store.Load(req); err != nil || loaded == nil {
		t.Fatalf("Expected session to load, got %v, %v", loaded, err)
	}
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Errorf("Expected loading to restart the TTL at %s, got %s", time.Minute, ttl)
	}

	mr.FastForward(time.Minute)
	if loaded, err := store.Load(req); err != nil || loaded != nil {
		t.Errorf("Expected the idle session to have expired, got %v, %v", loaded, err)
	}
}
