package authcode

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	yall "yall.in"
)

// MemorySessions keeps sessions in process memory. It is meant for tests and
// single-instance deployments; sessions are lost on restart.
//
// A session expires once it has not been loaded for the store's TTL. Expired
// sessions are dropped when they are next loaded, and swept whenever a new
// session is started.
type MemorySessions struct {
	cookie CookieOptions
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	sessions  map[string]*memoryData
	lastSweep time.Time
}

// maxSweepInterval bounds how often create walks the whole map.
const maxSweepInterval = time.Minute

type memoryData struct {
	identity *Identity
	lastSeen time.Time
}

// NewMemorySessions returns an empty MemorySessions. Sessions live for
// cookie.MaxAge after their last use, or DefaultSessionTTL when MaxAge is
// not set.
func NewMemorySessions(cookie CookieOptions) *MemorySessions {
	ttl := cookie.MaxAge
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessions{
		cookie:   cookie.withDefaults(),
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]*memoryData{},
	}
}

func (m *MemorySessions) expired(data *memoryData, now time.Time) bool {
	return now.Sub(data.lastSeen) >= m.ttl
}

// Load implements SessionStore.
func (m *MemorySessions) Load(r *http.Request) (Session, error) {
	if s := sessionFromContext(r.Context()); s != nil {
		return s, nil
	}
	id := m.cookie.sessionID(r)
	if id == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	now := m.now()
	if m.expired(data, now) {
		delete(m.sessions, id)
		return nil, nil
	}
	data.lastSeen = now
	return &memorySession{store: m, id: id}, nil
}

// Handler makes sure every request reaching next has a session, starting a
// new one when the client did not present a known session cookie.
func (m *MemorySessions) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Load(r)
		if err == nil && s == nil {
			s, err = m.create(r)
			if err == nil {
				http.SetCookie(w, m.cookie.cookie(s.ID()))
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

func (m *MemorySessions) create(_ *http.Request) (Session, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("generating session ID: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	m.sessions[id] = &memoryData{lastSeen: now}
	return &memorySession{store: m, id: id}, nil
}

// sweep drops every expired session, at most once per sweep interval. m.mu
// must be held.
func (m *MemorySessions) sweep(now time.Time) {
	interval := m.ttl
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	if now.Sub(m.lastSweep) < interval {
		return
	}
	m.lastSweep = now
	for id, data := range m.sessions {
		if m.expired(data, now) {
			delete(m.sessions, id)
		}
	}
}

// Len returns the number of sessions held, including expired sessions that
// have not been swept yet.
func (m *MemorySessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type memorySession struct {
	store *MemorySessions
	id    string
}

func (s *memorySession) ID() string {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.id
}

func (s *memorySession) Identity() *Identity {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	data, ok := s.store.sessions[s.id]
	if !ok {
		return nil
	}
	return data.identity
}

func (s *memorySession) SetIdentity(_ context.Context, identity *Identity) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	data, ok := s.store.sessions[s.id]
	if !ok {
		data = &memoryData{}
		s.store.sessions[s.id] = data
	}
	data.identity = identity
	data.lastSeen = s.store.now()
	return nil
}

func (s *memorySession) Regenerate(_ context.Context, w http.ResponseWriter) error {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Errorf("generating session ID: %w", err)
	}
	s.store.mu.Lock()
	data, ok := s.store.sessions[s.id]
	if !ok {
		data = &memoryData{}
	}
	data.lastSeen = s.store.now()
	delete(s.store.sessions, s.id)
	s.store.sessions[id] = data
	s.id = id
	s.store.mu.Unlock()

	http.SetCookie(w, s.store.cookie.cookie(id))
	return nil
}
