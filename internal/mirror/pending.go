package mirror

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Pending write statuses.
const (
	PendingQueued  = "queued"
	PendingSending = "sending"
	PendingFailed  = "failed"
)

// PendingWrite is a locally queued write that failed to reach the remote
// store. Entries are retried by the outbox until sent or parked as failed.
type PendingWrite struct {
	ID            int64
	ClientID      string
	ScopeKey      string
	Collection    string
	Payload       json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt int64
	LastError     string
	CreatedAt     int64
}

// QueuePending appends a write to the per-scope pending list.
func (s *Store) QueuePending(clientID, scopeKey, collection string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode pending write: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = s.Exec(`
		INSERT INTO pending_writes (client_id, scope_key, collection, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)`,
		clientID, scopeKey, collection, string(data), now, now)
	return err
}

// DuePending returns queued writes whose retry time has come, oldest first.
func (s *Store) DuePending(now time.Time, limit int) ([]PendingWrite, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(`
		SELECT id, client_id, scope_key, collection, payload, status, attempts, next_attempt_at, last_error, created_at
		FROM pending_writes
		WHERE status = 'queued' AND next_attempt_at <= ?
		ORDER BY created_at ASC
		LIMIT ?`, now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	return scanPending(rows)
}

// PendingByScope returns all pending writes for one scope key, oldest first.
func (s *Store) PendingByScope(scopeKey string) ([]PendingWrite, error) {
	rows, err := s.Query(`
		SELECT id, client_id, scope_key, collection, payload, status, attempts, next_attempt_at, last_error, created_at
		FROM pending_writes
		WHERE scope_key = ?
		ORDER BY created_at ASC`, scopeKey)
	if err != nil {
		return nil, err
	}
	return scanPending(rows)
}

// AllPending returns every pending write, oldest first.
func (s *Store) AllPending() ([]PendingWrite, error) {
	rows, err := s.Query(`
		SELECT id, client_id, scope_key, collection, payload, status, attempts, next_attempt_at, last_error, created_at
		FROM pending_writes
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	return scanPending(rows)
}

// MarkPendingSending moves an entry to 'sending'.
func (s *Store) MarkPendingSending(clientID string) error {
	_, err := s.Exec(`UPDATE pending_writes SET status = 'sending', updated_at = ? WHERE client_id = ?`,
		time.Now().UnixMilli(), clientID)
	return err
}

// RequeueStuckSending returns entries stranded in 'sending' by an
// interrupted replay to 'queued' so they become due again.
func (s *Store) RequeueStuckSending() (int64, error) {
	res, err := s.Exec(`UPDATE pending_writes SET status = 'queued', updated_at = ? WHERE status = 'sending'`,
		time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkPendingRetry returns an entry to 'queued' after a failed attempt,
// recording the error and the next retry time.
func (s *Store) MarkPendingRetry(clientID, errMsg string, nextAttempt time.Time) error {
	_, err := s.Exec(`
		UPDATE pending_writes
		SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE client_id = ?`,
		errMsg, nextAttempt.UnixMilli(), time.Now().UnixMilli(), clientID)
	return err
}

// MarkPendingFailed parks an entry as permanently failed.
func (s *Store) MarkPendingFailed(clientID, errMsg string) error {
	_, err := s.Exec(`
		UPDATE pending_writes
		SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE client_id = ?`,
		errMsg, time.Now().UnixMilli(), clientID)
	return err
}

// DeletePending removes an entry once its write reached the remote store.
func (s *Store) DeletePending(clientID string) error {
	_, err := s.Exec(`DELETE FROM pending_writes WHERE client_id = ?`, clientID)
	return err
}

// PendingCounts returns the number of queued-or-sending and failed entries.
func (s *Store) PendingCounts() (pending, failed int64, err error) {
	err = s.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE status IN ('queued', 'sending')),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM pending_writes`).Scan(&pending, &failed)
	return pending, failed, err
}

func scanPending(rows *sql.Rows) ([]PendingWrite, error) {
	defer func() { _ = rows.Close() }()
	var entries []PendingWrite
	for rows.Next() {
		var e PendingWrite
		var payload string
		if err := rows.Scan(&e.ID, &e.ClientID, &e.ScopeKey, &e.Collection, &payload,
			&e.Status, &e.Attempts, &e.NextAttemptAt, &e.LastError, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
