// Package auth is the access-control collaborator: users, passwords, bearer
// tokens and the role→capability policy. The core never sees any of this —
// it only receives the capability grant resolved here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fatture/internal/cache"
	"fatture/internal/capability"
	"fatture/internal/core"
)

// ErrDuplicateUser signals a username or email collision on registration.
var ErrDuplicateUser = errors.New("username or email already registered")

// ErrWeakPassword rejects passwords below the minimum length.
var ErrWeakPassword = errors.New("password must be at least 8 characters")

// ErrInvalidRegistration rejects malformed registration fields.
var ErrInvalidRegistration = errors.New("invalid registration")

const minPasswordLen = 8

// Store is the persistence port for user accounts.
type Store interface {
	// CreateUser fails with ErrDuplicateUser on a username or email collision.
	CreateUser(ctx context.Context, u core.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	SetUserActive(ctx context.Context, id int64, active bool) error
}

// Service authenticates callers and resolves their capability grants. User
// lookups on the hot token path go through a short-TTL cache, invalidated on
// password change and deactivation.
type Service struct {
	store   Store
	tokens  *TokenManager
	policy  *Policy
	users   *cache.LRUCache[core.User]
	cleanup *cache.Manager
}

func NewService(store Store, tokens *TokenManager, policy *Policy) *Service {
	if policy == nil {
		policy = DefaultPolicy()
	}
	users := cache.NewLRUCache[core.User](500, 30*time.Second)
	cleanup := cache.NewManager()
	cleanup.Register(users)
	cleanup.StartCleanup(time.Minute)
	return &Service{
		store:   store,
		tokens:  tokens,
		policy:  policy,
		users:   users,
		cleanup: cleanup,
	}
}

// Close stops the cache sweep goroutine.
func (s *Service) Close() {
	s.cleanup.Stop()
}

// RegisterParams carries a new account. Role defaults to RoleUser.
type RegisterParams struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Role      string
}

func (s *Service) Register(ctx context.Context, p RegisterParams) (core.User, error) {
	username := strings.TrimSpace(p.Username)
	email := strings.TrimSpace(p.Email)
	if username == "" {
		return core.User{}, fmt.Errorf("username is required: %w", ErrInvalidRegistration)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return core.User{}, fmt.Errorf("email %q is not valid: %w", email, ErrInvalidRegistration)
	}
	if len(p.Password) < minPasswordLen {
		return core.User{}, ErrWeakPassword
	}
	role := p.Role
	if role == "" {
		role = RoleUser
	}
	if _, ok := s.policy.Roles[role]; !ok {
		return core.User{}, fmt.Errorf("unknown role %q: %w", role, ErrInvalidRegistration)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := core.User{
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(p.FirstName),
		LastName:     strings.TrimSpace(p.LastName),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	id, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, err
	}
	u.ID = id

	slog.InfoContext(ctx, "User registered", "id", id, "username", username, "role", role)
	return u, nil
}

// Login verifies the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("bad credentials: %w", core.ErrUnauthorized)
		}
		return "", err
	}
	if !u.IsActive {
		return "", fmt.Errorf("account is deactivated: %w", core.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("bad credentials: %w", core.ErrUnauthorized)
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "User logged in", "id", u.ID, "username", u.Username)
	return token, nil
}

// Authenticate resolves a bearer token into the user and their capability
// grant. The grant carries whatever the policy assigns to the user's role.
func (s *Service) Authenticate(ctx context.Context, token string) (core.User, capability.Grant, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return core.User{}, nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return core.User{}, nil, err
	}

	u, err := s.lookupUser(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.User{}, nil, fmt.Errorf("user %d no longer exists: %w", id, core.ErrUnauthorized)
		}
		return core.User{}, nil, err
	}
	if !u.IsActive {
		return core.User{}, nil, fmt.Errorf("account is deactivated: %w", core.ErrUnauthorized)
	}

	return u, s.policy.GrantFor(u.Role), nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return fmt.Errorf("current password does not match: %w", core.ErrUnauthorized)
	}
	if len(next) < minPasswordLen {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	s.users.Delete(userCacheKey(userID))
	slog.InfoContext(ctx, "Password changed", "id", userID)
	return nil
}

// Deactivate disables an account. Outstanding tokens fail on the next
// Authenticate once the cache entry expires or is evicted here.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	if err := s.store.SetUserActive(ctx, userID, false); err != nil {
		return err
	}
	s.users.Delete(userCacheKey(userID))
	slog.InfoContext(ctx, "User deactivated", "id", userID)
	return nil
}

func (s *Service) lookupUser(ctx context.Context, id int64) (core.User, error) {
	key := userCacheKey(id)
	if u, ok := s.users.Get(key); ok {
		return u, nil
	}
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	s.users.Set(key, u)
	return u, nil
}

func userCacheKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}
