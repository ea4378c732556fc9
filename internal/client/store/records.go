package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/driftnotes/driftsync/internal/client/models"
	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/dbx"
)

const checkpointKey = "checkpoint"

// RecordRepository implements local record access using a DBTX (either
// *sql.DB or *sql.Tx).
type RecordRepository struct {
	db dbx.DBTX
}

// NewRecordRepository returns a RecordRepository bound to the given DBTX.
func NewRecordRepository(db dbx.DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

// Save upserts a record from a local user write and flags it dirty so the
// next sync cycle pushes it.
func (r *RecordRepository) Save(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO records (id, content, updated_at, deleted, dirty)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(id) DO UPDATE SET content = excluded.content,
				updated_at = excluded.updated_at,
				deleted = excluded.deleted,
				dirty = 1
	`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Content, rec.UpdatedAt, rec.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// ApplyRemote overwrites a record with a version that won resolution
// against the remote. The record is stored clean: it already matches the
// remote and must not be pushed back.
func (r *RecordRepository) ApplyRemote(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO records (id, content, updated_at, deleted, dirty)
			VALUES (?, ?, ?, ?, 0)
			ON CONFLICT(id) DO UPDATE SET content = excluded.content,
				updated_at = excluded.updated_at,
				deleted = excluded.deleted,
				dirty = 0
	`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Content, rec.UpdatedAt, rec.Deleted)
	if err != nil {
		return fmt.Errorf("failed to apply remote record: %w", err)
	}
	return nil
}

// Get returns a single record, tombstones included.
func (r *RecordRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT id, content, updated_at, deleted FROM records WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	rec := &models.Record{}
	if err := row.Scan(&rec.ID, &rec.Content, &rec.UpdatedAt, &rec.Deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return rec, nil
}

// List returns all live records ordered by recency.
func (r *RecordRepository) List(ctx context.Context) ([]models.Record, error) {
	query := `SELECT id, content, updated_at, deleted FROM records
			WHERE deleted = 0 ORDER BY updated_at DESC`
	return r.queryRecords(ctx, query)
}

// ListDirty returns every record awaiting push, tombstones included.
func (r *RecordRepository) ListDirty(ctx context.Context) ([]models.Record, error) {
	query := `SELECT id, content, updated_at, deleted FROM records WHERE dirty = 1`
	return r.queryRecords(ctx, query)
}

func (r *RecordRepository) queryRecords(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.UpdatedAt, &rec.Deleted); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete tombstones a record: the id and a fresh timestamp survive so the
// delete replicates. Deleting an absent id creates the tombstone outright,
// which keeps delete idempotent across replicas.
func (r *RecordRepository) Delete(ctx context.Context, id string, updatedAt int64) error {
	query := `INSERT INTO records (id, content, updated_at, deleted, dirty)
			VALUES (?, '', ?, 1, 1)
			ON CONFLICT(id) DO UPDATE SET content = '',
				updated_at = excluded.updated_at,
				deleted = 1,
				dirty = 1
	`
	_, err := r.db.ExecContext(ctx, query, id, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// MarkClean clears the dirty flag only while the record still carries the
// pushed timestamp. A newer local edit made during the push keeps the
// record dirty for the next cycle.
func (r *RecordRepository) MarkClean(ctx context.Context, id string, updatedAt int64) error {
	query := `UPDATE records SET dirty = 0 WHERE id = ? AND updated_at = ?`
	_, err := r.db.ExecContext(ctx, query, id, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to mark record clean: %w", err)
	}
	return nil
}

// Checkpoint returns the high-water mark of remote changes already applied
// locally, or zero when no sync has completed yet.
func (r *RecordRepository) Checkpoint(ctx context.Context) (int64, error) {
	query := `SELECT value FROM sync_state WHERE key = ?`
	row := r.db.QueryRowContext(ctx, query, checkpointKey)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed checkpoint value: %w", err)
	}
	return value, nil
}

// SetCheckpoint advances the high-water mark.
func (r *RecordRepository) SetCheckpoint(ctx context.Context, value int64) error {
	query := `INSERT INTO sync_state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := r.db.ExecContext(ctx, query, checkpointKey, strconv.FormatInt(value, 10))
	if err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}

// RecordConflict appends a resolution outcome to the conflict log.
func (r *RecordRepository) RecordConflict(ctx context.Context, c *models.ConflictResolution) error {
	query := `INSERT INTO sync_conflicts (record_id, winner_updated_at, loser_updated_at, strategy, resolved_at)
			VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		c.RecordID, c.WinnerUpdatedAt, c.LoserUpdatedAt, c.Strategy, c.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	return nil
}

// ListConflicts returns the conflict log for a record, newest first.
func (r *RecordRepository) ListConflicts(ctx context.Context, recordID string) ([]models.ConflictResolution, error) {
	query := `SELECT record_id, winner_updated_at, loser_updated_at, strategy, resolved_at
			FROM sync_conflicts WHERE record_id = ? ORDER BY resolved_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []models.ConflictResolution
	for rows.Next() {
		var c models.ConflictResolution
		if err := rows.Scan(&c.RecordID, &c.WinnerUpdatedAt, &c.LoserUpdatedAt, &c.Strategy, &c.ResolvedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
