package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// CookieName is the session cookie issued after a successful login.
const CookieName = "loungeskip_session"

const sessionTTL = 24 * time.Hour

// Service holds in-memory dashboard sessions checked against a single
// configured password hash. With no hash configured the dashboard is open
// and Login always fails.
type Service struct {
	passwordHash string

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewService(passwordHash string) *Service {
	return &Service{
		passwordHash: passwordHash,
		sessions:     make(map[string]time.Time),
	}
}

// Enabled reports whether a password is configured at all.
func (s *Service) Enabled() bool {
	return s.passwordHash != ""
}

// Login verifies the password and mints a session token. Verification runs
// against DummyHash when auth is disabled to keep timing uniform.
func (s *Service) Login(password string) (string, bool) {
	hash := s.passwordHash
	if hash == "" {
		hash = DummyHash
	}
	ok, err := VerifyPassword(password, hash)
	if err != nil || !ok || s.passwordHash == "" {
		return "", false
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", false
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.sessions[token] = time.Now().Add(sessionTTL)
	s.mu.Unlock()
	return token, true
}

// Valid reports whether the token names a live session, pruning it on expiry.
func (s *Service) Valid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expires) {
		delete(s.sessions, token)
		return false
	}
	return true
}

func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
