package memory

import (
	"context"
	"fmt"
	"time"

	"fatture/internal/auth"
	"fatture/internal/core"
)

func (s *Store) CreateUser(ctx context.Context, u core.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return 0, fmt.Errorf("username %q or email %q: %w",
				u.Username, u.Email, auth.ErrDuplicateUser)
		}
	}

	u.ID = s.id("users")
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)
	s.users[u.ID] = u
	return u.ID, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user id %d: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user id %d: %w", id, core.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	s.users[id] = u
	return nil
}

func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user id %d: %w", id, core.ErrNotFound)
	}
	u.IsActive = active
	s.users[id] = u
	return nil
}
