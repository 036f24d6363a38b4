package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const passwordCost = 10

// Session is an issued login token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Service registers users and issues session tokens.
type Service struct {
	users       UserStore
	secret      []byte
	ttl         time.Duration
	defaultRole Role
	now         func() time.Time
	logger      *zap.Logger
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithTokenTTL sets the session lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithDefaultRole sets the role given to newly registered users.
func WithDefaultRole(role Role) ServiceOption {
	return func(s *Service) {
		if normalized, ok := NormalizeRole(string(role)); ok {
			s.defaultRole = normalized
		}
	}
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs an auth service.
func NewService(users UserStore, secret []byte, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth service: nil user store")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth service: empty secret")
	}
	s := &Service{
		users:       users,
		secret:      secret,
		ttl:         12 * time.Hour,
		defaultRole: RoleViewer,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password, name string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, ErrMissingFields
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return User{}, fmt.Errorf("auth: hash password: %w", err)
	}
	user, err := s.users.Create(ctx, User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         s.defaultRole,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("auth: user registered", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, ErrMissingFields
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if user == nil {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	token, expiresAt, err := IssueJWT(*user, s.secret, s.ttl, s.now())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}
