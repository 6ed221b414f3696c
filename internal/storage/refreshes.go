package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Refresh request statuses.
const (
	RefreshPending    = "pending"
	RefreshProcessing = "processing"
	RefreshCompleted  = "completed"
	RefreshFailed     = "failed"
)

// ReportRefresh is one queued request to recompute and mirror the report.
type ReportRefresh struct {
	ID          int64
	Reason      string
	Status      string
	Attempts    int
	LastError   string
	RequestedAt time.Time
	UpdatedAt   time.Time
}

// EnqueueRefresh records a refresh request. While a pending request exists
// the queue absorbs further ones: a single recompute covers any number of
// invoice mutations.
func (s *Store) EnqueueRefresh(ctx context.Context, reason string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM report_refreshes WHERE status = ?)",
			RefreshPending).Scan(&exists)
		if err != nil {
			return storageErr("probe pending refresh", err)
		}
		if exists {
			return nil
		}

		now := nowUTC()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO report_refreshes (reason, status, attempts, last_error, requested_at, updated_at)
			VALUES (?, ?, 0, '', ?, ?)`,
			reason, RefreshPending, now, now)
		if err != nil {
			return storageErr("enqueue refresh", err)
		}
		return nil
	})
}

// ClaimRefresh atomically moves the oldest pending request to processing.
// The second return is false when the queue is empty.
func (s *Store) ClaimRefresh(ctx context.Context) (ReportRefresh, bool, error) {
	var (
		r     ReportRefresh
		found bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, reason, status, attempts, last_error, requested_at, updated_at
			FROM report_refreshes WHERE status = ?
			ORDER BY requested_at ASC, id ASC LIMIT 1`, RefreshPending)
		err := row.Scan(&r.ID, &r.Reason, &r.Status, &r.Attempts,
			&r.LastError, &r.RequestedAt, &r.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return storageErr("scan refresh", err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE report_refreshes SET status = ?, updated_at = ? WHERE id = ?",
			RefreshProcessing, nowUTC(), r.ID)
		if err != nil {
			return storageErr("claim refresh", err)
		}
		r.Status = RefreshProcessing
		found = true
		return nil
	})
	if err != nil {
		return ReportRefresh{}, false, err
	}
	return r, found, nil
}

func (s *Store) CompleteRefresh(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE report_refreshes SET status = ?, last_error = '', updated_at = ? WHERE id = ?",
		RefreshCompleted, nowUTC(), id)
	if err != nil {
		return storageErr("complete refresh", err)
	}
	return nil
}

// FailRefresh records a failed attempt. Below maxAttempts the request goes
// back to pending for a retry; at the cap it is marked failed permanently.
func (s *Store) FailRefresh(ctx context.Context, id int64, cause string, maxAttempts int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var attempts int
		err := tx.QueryRowContext(ctx,
			"SELECT attempts FROM report_refreshes WHERE id = ?", id).Scan(&attempts)
		if err != nil {
			return storageErr("read refresh attempts", err)
		}

		attempts++
		status := RefreshPending
		if attempts >= maxAttempts {
			status = RefreshFailed
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE report_refreshes SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?",
			status, attempts, cause, nowUTC(), id)
		if err != nil {
			return storageErr("fail refresh", err)
		}
		return nil
	})
}

// ResetStaleRefreshes returns processing rows older than the cutoff to
// pending. Run at worker startup to recover requests orphaned by a crash.
func (s *Store) ResetStaleRefreshes(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := nowUTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		"UPDATE report_refreshes SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?",
		RefreshPending, nowUTC(), RefreshProcessing, cutoff)
	if err != nil {
		return 0, storageErr("reset stale refreshes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("read rows affected", err)
	}
	return n, nil
}

// CleanupRefreshes deletes completed and failed rows older than the cutoff.
func (s *Store) CleanupRefreshes(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := nowUTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM report_refreshes WHERE status IN (?, ?) AND updated_at < ?",
		RefreshCompleted, RefreshFailed, cutoff)
	if err != nil {
		return 0, storageErr("cleanup refreshes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("read rows affected", err)
	}
	return n, nil
}
