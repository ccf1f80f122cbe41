package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/logger"
	model "github.com/mri-lab/mri-console/internal/model/session"
	"github.com/mri-lab/mri-console/internal/storage"
)

// Listener is called after the session changes. ok is false once cleared.
type Listener func(s model.Session, ok bool)

// Service is the single owner of the cached credential bundle. Every other
// component reads the session through it instead of touching storage.
type Service struct {
	store  storage.Store
	logger *zap.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// NewService wraps store.
func NewService(store storage.Store, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		logger:    logger.OrNop(log).Named("session"),
		listeners: make(map[int]Listener),
	}
}

// Get returns the stored session. A session exists iff an access token is
// stored; read failures count as "no session".
func (s *Service) Get() (model.Session, bool) {
	token, ok := s.read(model.KeyAccessToken)
	if !ok || token == "" {
		return model.Session{}, false
	}

	tokenType, _ := s.read(model.KeyTokenType)
	username, _ := s.read(model.KeyUsername)
	role, _ := s.read(model.KeyRole)

	return model.Session{
		AccessToken: token,
		TokenType:   tokenType,
		Username:    username,
		Role:        model.ParseRole(role),
	}, true
}

func (s *Service) read(key string) (string, bool) {
	v, ok, err := s.store.Get(key)
	if err != nil {
		s.logger.Warn("failed to read session key", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}

// Set stores sess and notifies listeners.
func (s *Service) Set(sess model.Session) error {
	if sess.AccessToken == "" {
		return fmt.Errorf("session requires an access token")
	}
	if sess.Role == "" {
		sess.Role = model.RoleUser
	}

	values := [][2]string{
		{model.KeyAccessToken, sess.AccessToken},
		{model.KeyTokenType, sess.TokenType},
		{model.KeyUsername, sess.Username},
		{model.KeyRole, string(sess.Role)},
	}
	for _, kv := range values {
		if err := s.store.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("store %s: %w", kv[0], err)
		}
	}

	s.logger.Debug("session stored", zap.String("username", sess.Username), zap.String("role", string(sess.Role)))
	s.emit(sess, true)
	return nil
}

// Clear removes every session key and notifies listeners.
func (s *Service) Clear() error {
	if err := s.store.Delete(model.Keys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Debug("session cleared")
	s.emit(model.Session{}, false)
	return nil
}

// IsAuthenticated reports whether a session exists.
func (s *Service) IsAuthenticated() bool {
	_, ok := s.Get()
	return ok
}

// IsAdmin is true iff a session exists and its role is admin.
func (s *Service) IsAdmin() bool {
	sess, ok := s.Get()
	return ok && sess.Role == model.RoleAdmin
}

// Token returns the raw access token.
func (s *Service) Token() (string, bool) {
	sess, ok := s.Get()
	return sess.AccessToken, ok
}

// AuthorizationHeader returns "<tokenType> <token>".
func (s *Service) AuthorizationHeader() (string, bool) {
	sess, ok := s.Get()
	if !ok {
		return "", false
	}
	return sess.Authorization(), true
}

// OnChange registers l and returns a function that unregisters it.
func (s *Service) OnChange(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) emit(sess model.Session, ok bool) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(sess, ok)
	}
}
