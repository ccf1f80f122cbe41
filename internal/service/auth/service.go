// Package auth keeps the stand-in backend's accounts and issues JWTs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mri-lab/mri-console/internal/model/session"
)

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrUserExists         = errors.New("用户名已存在")
	ErrInvalidAdminKey    = errors.New("管理员注册密钥无效")
	ErrMissingFields      = errors.New("用户名和密码不能为空")
	ErrInvalidToken       = errors.New("无效的认证令牌")
)

// User 账户信息。
type User struct {
	Username string       `json:"username"`
	Email    string       `json:"email,omitempty"`
	Role     session.Role `json:"role"`
	hash     []byte
}

// Claims are carried in issued tokens; Subject is the username.
type Claims struct {
	Role session.Role `json:"role"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret   string
	TTL      time.Duration
	AdminKey string
}

// Service 内存中的账户与令牌服务。
type Service struct {
	mu       sync.RWMutex
	users    map[string]User
	secret   []byte
	ttl      time.Duration
	adminKey string
	now      func() time.Time
}

// Seed accounts available on every start.
var seedUsers = []struct {
	username, password string
	role               session.Role
}{
	{"admin", "admin123", session.RoleAdmin},
	{"doctor", "doctor123", session.RoleUser},
}

// NewService creates the service with the seed accounts. An empty secret
// gets a random one, so tokens do not survive a restart.
func NewService(cfg Config) (*Service, error) {
	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	s := &Service{
		users:    make(map[string]User),
		secret:   []byte(secret),
		ttl:      ttl,
		adminKey: cfg.AdminKey,
		now:      time.Now,
	}
	for _, u := range seedUsers {
		if err := s.add(u.username, "", u.password, u.role); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) add(username, email, password string, role session.Role) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	s.users[username] = User{Username: username, Email: email, Role: role, hash: hash}
	return nil
}

// Authenticate checks a username/password pair.
func (s *Service) Authenticate(_ context.Context, username, password string) (User, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// RegisterInput 注册参数。
type RegisterInput struct {
	Username string       `json:"username"`
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Role     session.Role `json:"role"`
	AdminKey string       `json:"admin_key"`
}

// Register creates an account. The admin role needs the admin key.
func (s *Service) Register(_ context.Context, in RegisterInput) (User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return User{}, ErrMissingFields
	}
	role := session.ParseRole(string(in.Role))
	if role == session.RoleAdmin && (s.adminKey == "" || in.AdminKey != s.adminKey) {
		return User{}, ErrInvalidAdminKey
	}
	if err := s.add(username, in.Email, in.Password, role); err != nil {
		return User{}, err
	}
	return User{Username: username, Email: in.Email, Role: role}, nil
}

// IssueToken signs an HS256 token for u.
func (s *Service) IssueToken(u User) (string, error) {
	now := s.now()
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses a token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
