// Package auth is the identity provider: accounts, passwords and sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// DefaultSessionTTL applies when no TTL is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrUserNotFound       = errors.New("user not found")
)

// User is a registered account.
type User struct {
	ID           domain.UserID `json:"id"`
	Email        string        `json:"email"`
	PasswordHash []byte        `json:"password_hash"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Session is an issued login.
type Session struct {
	Token     string        `json:"token"`
	UserID    domain.UserID `json:"user_id"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Store persists users and sessions.
type Store interface {
	// CreateUser fails with ErrEmailTaken if the email exists.
	CreateUser(ctx context.Context, u User) error
	// UserByEmail fails with ErrUserNotFound.
	UserByEmail(ctx context.Context, email string) (User, error)
	SaveSession(ctx context.Context, s Session, ttl time.Duration) error
	// SessionUser returns false for unknown or expired tokens.
	SessionUser(ctx context.Context, token string) (domain.UserID, bool, error)
	DeleteSession(ctx context.Context, token string) error
}

// Service implements signup, login, logout and token resolution.
type Service struct {
	store  Store
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
	cost   int
}

// NewService builds the identity provider. ttl <= 0 means DefaultSessionTTL.
func NewService(store Store, ttl time.Duration, log logger.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		store:  store,
		ttl:    ttl,
		logger: log,
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}
}

// WithHashCost lowers the bcrypt cost. Only tests should call it.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Signup registers a new account.
func (s *Service) Signup(ctx context.Context, email, password string) (domain.UserID, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	u := User{
		ID:           domain.UserID(uuid.NewString()),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return "", err
	}

	s.logger.Info("user signed up", logger.String("user_id", string(u.ID)))
	return u.ID, nil
}

// Login checks credentials and issues a session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}

	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		Token:     token,
		UserID:    u.ID,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.store.SaveSession(ctx, sess, s.ttl); err != nil {
		return Session{}, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("user logged in", logger.String("user_id", string(u.ID)))
	return sess, nil
}

// Logout revokes a session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

// Resolve maps a token to its user. A missing, unknown or expired token
// yields ("", false, nil); only transport failures are errors.
func (s *Service) Resolve(ctx context.Context, token string) (domain.UserID, bool, error) {
	if token == "" {
		return "", false, nil
	}
	return s.store.SessionUser(ctx, token)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
