package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"aarambh-client/internal/config"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/pkg/errors"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
)

// expirySkew treats a token as expired slightly early so a request does not
// race the backend's own check.
const expirySkew = 30 * time.Second

type record struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Session holds the signed-in user's bearer token. It is created once at
// start-up, handed to every component that talks to the backend, and
// cleared on logout.
type Session struct {
	store Store
	key   string

	mu        sync.RWMutex
	token     string
	user      model.User
	expiresAt time.Time

	now func() time.Time
	log zerolog.Logger
}

func New(store Store, key string) *Session {
	if key == "" {
		key = "session"
	}
	return &Session{
		store: store,
		key:   key,
		now:   time.Now,
		log:   logger.For("session"),
	}
}

// Open builds the configured store and a Session on it. The returned close
// func releases the store's connection, if any.
func Open(cfg *config.Config) (*Session, func() error, error) {
	switch cfg.Session.Store {
	case config.SessionStoreRedis:
		rdb, err := NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return New(NewRedisStore(rdb, cfg.Redis.KeyPrefix), cfg.Session.Key), rdb.Close, nil
	default:
		return New(NewMemoryStore(), cfg.Session.Key), func() error { return nil }, nil
	}
}

// Store exposes the backing store so other components can share it.
func (s *Session) Store() Store {
	return s.store
}

// Init restores a previously saved session. A missing record is not an
// error.
func (s *Session) Init(ctx context.Context) error {
	raw, err := s.store.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.log.Warn().Err(err).Msg("Discarding unreadable session record")
		return s.store.Delete(ctx, s.key)
	}

	s.mu.Lock()
	s.token = rec.Token
	s.user = rec.User
	s.expiresAt = tokenExpiry(rec.Token)
	s.mu.Unlock()

	s.log.Debug().Str("user_id", rec.User.ID).Msg("Session restored")
	return nil
}

// Set stores a freshly issued token for user.
func (s *Session) Set(ctx context.Context, token string, user model.User) error {
	exp := tokenExpiry(token)

	data, err := json.Marshal(record{Token: token, User: user})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var ttl time.Duration
	if !exp.IsZero() {
		ttl = time.Until(exp)
		if ttl <= 0 {
			return errors.ErrSessionExpired
		}
	}
	if err := s.store.Set(ctx, s.key, string(data), ttl); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.expiresAt = exp
	s.mu.Unlock()
	return nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.token != ""
}

// Valid reports whether a token is held and not about to expire. Tokens
// without an exp claim are valid until the backend rejects them.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return false
	}
	if s.expiresAt.IsZero() {
		return true
	}
	return s.now().Before(s.expiresAt.Add(-expirySkew))
}

// Clear forgets the token locally and in the store.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = model.User{}
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if err := s.store.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client cannot verify it and only uses it to avoid sending dead tokens.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0)
	case json.Number:
		if v, err := exp.Int64(); err == nil {
			return time.Unix(v, 0)
		}
	}
	return time.Time{}
}
