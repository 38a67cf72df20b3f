package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
)

// History source values.
const (
	SourceEvent   = "event"
	SourceCommand = "command"
	SourceResync  = "resync"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// recordedAtLayout is fixed width so recorded_at sorts as text.
	recordedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// HistoryEntry is one recorded group status.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	ZoneID     int       `json:"zone_id"`
	Type       dss.Type  `json:"type"`
	GroupID    int       `json:"group_id"`
	Status     dss.Value `json:"status"`
	Scene      *int      `json:"scene,omitempty"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryRepository keeps a local log of group status changes, so the
// last states survive even when InfluxDB is unavailable.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a repository on a migrated database.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record appends one entry. RecordedAt defaults to now and Source to
// SourceEvent.
func (r *HistoryRepository) Record(ctx context.Context, e HistoryEntry) error {
	if e.Source == "" {
		e.Source = SourceEvent
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	status, err := json.Marshal(e.Status)
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}

	var scene sql.NullInt64
	if e.Scene != nil {
		scene = sql.NullInt64{Int64: int64(*e.Scene), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO group_status_log
		   (zone_id, group_type, group_id, status, scene, source, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ZoneID,
		int(e.Type),
		e.GroupID,
		string(status),
		scene,
		e.Source,
		e.RecordedAt.UTC().Format(recordedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}
	return nil
}

// RecordEvent appends the status carried by a dispatched event.
func (r *HistoryRepository) RecordEvent(ctx context.Context, ev dss.Event) error {
	scene := ev.Scene
	return r.Record(ctx, HistoryEntry{
		ZoneID:  ev.ZoneID,
		Type:    ev.Type,
		GroupID: ev.Group,
		Status:  ev.Value,
		Scene:   &scene,
		Source:  SourceEvent,
	})
}

// History returns the most recent entries for one group, newest first.
// limit defaults to 50 and is capped at 200.
func (r *HistoryRepository) History(ctx context.Context, zone int, t dss.Type, group, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, zone_id, group_type, group_id, status, scene, source, recorded_at
		 FROM group_status_log
		 WHERE zone_id = ? AND group_type = ? AND group_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		zone, int(t), group, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying status history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e          HistoryEntry
			groupType  int
			status     string
			scene      sql.NullInt64
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.ZoneID, &groupType, &e.GroupID, &status, &scene, &e.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning status history: %w", err)
		}

		e.Type = dss.TypeFromCode(groupType)
		if err := json.Unmarshal([]byte(status), &e.Status); err != nil {
			return nil, fmt.Errorf("unmarshalling status: %w", err)
		}
		if scene.Valid {
			s := int(scene.Int64)
			e.Scene = &s
		}
		if e.RecordedAt, err = time.Parse(recordedAtLayout, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many were
// removed.
func (r *HistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(recordedAtLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM group_status_log WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting status history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
