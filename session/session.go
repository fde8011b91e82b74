package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Snapshot is the immutable view of the current credentials. An empty Token
// means no authenticated session.
type Snapshot struct {
	Token  string `json:"token"`
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Authenticated reports whether the snapshot carries a bearer token.
func (s Snapshot) Authenticated() bool { return s.Token != "" }

// Session holds the bearer token and user identity shared by every
// service-call site. All changes go through Set or Clear so subscribers
// observe a single consistent update path; there is no ambient global.
type Session struct {
	mu      sync.RWMutex
	current Snapshot
	subs    map[int]func(Snapshot)
	nextSub int
}

// New returns an empty, unauthenticated session.
func New() *Session {
	return &Session{subs: make(map[int]func(Snapshot))}
}

// Set replaces the current credentials and notifies subscribers.
func (s *Session) Set(snap Snapshot) {
	s.mu.Lock()
	s.current = snap
	fns := s.subscribers()
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// Clear drops the credentials, typically after the service answered 401.
func (s *Session) Clear() {
	s.Set(Snapshot{})
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// Snapshot returns a copy of the current credentials.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers fn to run after every credential change. The returned
// cancel func removes the subscription; owners must call it when they stop
// observing.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) subscribers() []func(Snapshot) {
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

// ExpiresWithin peeks at the token's exp claim without verifying the
// signature, so callers can re-authenticate before the service starts
// answering 401. Opaque (non-JWT) tokens and tokens without exp report false.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	token := s.Token()
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) <= d
}
