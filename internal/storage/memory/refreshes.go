package memory

import (
	"context"
	"sort"
	"time"

	"fatture/internal/storage"
)

func (s *Store) EnqueueRefresh(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.refreshes {
		if r.status == refreshPending {
			return nil
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	id := s.id("refreshes")
	s.refreshes[id] = refresh{
		id:          id,
		reason:      reason,
		status:      refreshPending,
		requestedAt: now,
		updatedAt:   now,
	}
	return nil
}

func (s *Store) ClaimRefresh(ctx context.Context) (storage.ReportRefresh, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []refresh
	for _, r := range s.refreshes {
		if r.status == refreshPending {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return storage.ReportRefresh{}, false, nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].requestedAt.Equal(pending[j].requestedAt) {
			return pending[i].requestedAt.Before(pending[j].requestedAt)
		}
		return pending[i].id < pending[j].id
	})

	r := pending[0]
	r.status = refreshProcessing
	r.updatedAt = time.Now().UTC().Truncate(time.Second)
	s.refreshes[r.id] = r

	return storage.ReportRefresh{
		ID:          r.id,
		Reason:      r.reason,
		Status:      r.status,
		Attempts:    r.attempts,
		LastError:   r.lastError,
		RequestedAt: r.requestedAt,
		UpdatedAt:   r.updatedAt,
	}, true, nil
}

func (s *Store) CompleteRefresh(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refreshes[id]
	if !ok {
		return nil
	}
	r.status = refreshCompleted
	r.lastError = ""
	r.updatedAt = time.Now().UTC().Truncate(time.Second)
	s.refreshes[id] = r
	return nil
}

func (s *Store) FailRefresh(ctx context.Context, id int64, cause string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refreshes[id]
	if !ok {
		return nil
	}
	r.attempts++
	r.lastError = cause
	if r.attempts >= maxAttempts {
		r.status = refreshFailed
	} else {
		r.status = refreshPending
	}
	r.updatedAt = time.Now().UTC().Truncate(time.Second)
	s.refreshes[id] = r
	return nil
}

func (s *Store) ResetStaleRefreshes(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for id, r := range s.refreshes {
		if r.status == refreshProcessing && r.updatedAt.Before(cutoff) {
			r.status = refreshPending
			r.updatedAt = time.Now().UTC().Truncate(time.Second)
			s.refreshes[id] = r
			n++
		}
	}
	return n, nil
}

func (s *Store) CleanupRefreshes(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for id, r := range s.refreshes {
		if (r.status == refreshCompleted || r.status == refreshFailed) && r.updatedAt.Before(cutoff) {
			delete(s.refreshes, id)
			n++
		}
	}
	return n, nil
}
