package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
)

// snapshotRowID is the primary key of the only row in structure_snapshots.
const snapshotRowID = 1

// SQLiteStore implements dss.Store on the structure_snapshots table. The
// whole zone tree is stored as one JSON document.
type SQLiteStore struct {
	db *sql.DB
}

var _ dss.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load implements dss.Store.
func (s *SQLiteStore) Load(ctx context.Context) ([]dss.Zone, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM structure_snapshots WHERE id = ?",
		snapshotRowID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying snapshot: %w", err)
	}

	var zones []dss.Zone
	if err := json.Unmarshal([]byte(payload), &zones); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return zones, true, nil
}

// Save implements dss.Store. The previous snapshot is replaced.
func (s *SQLiteStore) Save(ctx context.Context, zones []dss.Zone) error {
	payload, err := json.Marshal(zones)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO structure_snapshots (id, payload, zone_count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   payload = excluded.payload,
		   zone_count = excluded.zone_count,
		   updated_at = excluded.updated_at`,
		snapshotRowID,
		string(payload),
		len(zones),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// UpdatedAt returns when the snapshot was last saved. ok is false when no
// snapshot exists.
func (s *SQLiteStore) UpdatedAt(ctx context.Context) (t time.Time, ok bool, err error) {
	var value string
	err = s.db.QueryRowContext(ctx,
		"SELECT updated_at FROM structure_snapshots WHERE id = ?",
		snapshotRowID,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying snapshot: %w", err)
	}

	t, err = parseTimestamp(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// parseTimestamp parses an RFC 3339 timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return t, nil
}
