package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fatture/internal/auth"
	"fatture/internal/core"
)

const userColumns = "id, username, email, first_name, last_name, password_hash, role, is_active, created_at"

// CreateUser probes username and email for collisions inside the transaction,
// so registration races cannot produce two accounts with the same identity.
func (s *Store) CreateUser(ctx context.Context, u core.User) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE username = ? OR email = ?)",
			u.Username, u.Email).Scan(&exists)
		if err != nil {
			return storageErr("probe duplicate user", err)
		}
		if exists {
			return fmt.Errorf("username %q or email %q: %w", u.Username, u.Email, auth.ErrDuplicateUser)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO users (username, email, first_name, last_name, password_hash, role, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			u.Username, u.Email, u.FirstName, u.LastName,
			u.PasswordHash, u.Role, u.IsActive, nowUTC())
		if err != nil {
			return storageErr("insert user", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return storageErr("read insert id", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row, fmt.Sprintf("user id %d", id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row, fmt.Sprintf("user %q", username))
}

func (s *Store) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return s.userUpdate(ctx, id, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
}

func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	return s.userUpdate(ctx, id, "UPDATE users SET is_active = ? WHERE id = ?", active, id)
}

func (s *Store) userUpdate(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("read rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("user id %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row, what string) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, storageErr("scan user", err)
	}
	return u, nil
}
