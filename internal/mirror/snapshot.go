package mirror

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lfelipe/studyhall/internal/remote"
)

// ErrCorrupt indicates a stored snapshot payload could not be parsed.
// Callers treat it as "no cached value" so one bad key never blocks the app.
var ErrCorrupt = errors.New("corrupt snapshot payload")

// Snapshot is the last good cached value for one scope key.
type Snapshot struct {
	ScopeKey  string
	Docs      []remote.Document
	UpdatedAt time.Time
}

// PutSnapshot overwrites the snapshot for a scope key with the given
// document set, stamping the write time.
func (s *Store) PutSnapshot(scopeKey string, docs []remote.Document) error {
	if docs == nil {
		docs = []remote.Document{}
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO snapshots (scope_key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		scopeKey, string(payload), time.Now().UnixMilli())
	return err
}

// GetSnapshot returns the stored snapshot for a scope key, nil if absent,
// or an ErrCorrupt-wrapped error if the stored payload cannot be parsed.
func (s *Store) GetSnapshot(scopeKey string) (*Snapshot, error) {
	var payload string
	var updatedAt int64
	err := s.QueryRow(`SELECT payload, updated_at FROM snapshots WHERE scope_key = ?`, scopeKey).
		Scan(&payload, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []remote.Document
	if err := json.Unmarshal([]byte(payload), &docs); err != nil {
		return nil, fmt.Errorf("%w: key %s: %v", ErrCorrupt, scopeKey, err)
	}
	return &Snapshot{
		ScopeKey:  scopeKey,
		Docs:      docs,
		UpdatedAt: time.UnixMilli(updatedAt),
	}, nil
}

// SnapshotCount returns the number of stored snapshots.
func (s *Store) SnapshotCount() (int64, error) {
	var count int64
	err := s.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count)
	return count, err
}
