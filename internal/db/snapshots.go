package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/speedcurrent/internal/grid"
)

// ErrNoSnapshot is returned when no grid snapshot matches.
var ErrNoSnapshot = errors.New("no grid snapshot")

// Snapshot reasons recorded alongside the grid.
const (
	ReasonPeriodic = "periodic"
	ReasonManual   = "manual"
)

// GridSnapshot is one persisted correction grid.
type GridSnapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	Learned   int       `json:"learned_cells"`
	Reason    string    `json:"reason"`
	// Grid is the uncompressed grid JSON; empty in listings.
	Grid []byte `json:"-"`
}

// SaveGrid stores data as a new periodic snapshot and prunes snapshots past
// the retention.
func (db *DB) SaveGrid(ctx context.Context, data []byte) error {
	if _, err := db.InsertSnapshot(ctx, data, ReasonPeriodic); err != nil {
		return err
	}
	keep := int(db.retention.Load())
	if keep <= 0 {
		return nil
	}
	n, err := db.PruneSnapshots(ctx, keep)
	if err != nil {
		return err
	}
	if n > 0 {
		logf("pruned %d grid snapshots, keeping %d", n, keep)
	}
	return nil
}

// LoadGrid returns the newest snapshot's grid, or nil when none exists.
func (db *DB) LoadGrid(ctx context.Context) ([]byte, error) {
	s, err := db.LatestSnapshot(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Grid, nil
}

// InsertSnapshot validates data as a persisted grid, compresses it and
// stores it under a new id.
func (db *DB) InsertSnapshot(ctx context.Context, data []byte, reason string) (*GridSnapshot, error) {
	var dto grid.GridDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("snapshot is not a grid: %w", err)
	}
	s := &GridSnapshot{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Rows:      len(dto.Table),
		Reason:    reason,
	}
	if s.Rows > 0 {
		s.Cols = len(dto.Table[0])
	}
	for _, row := range dto.Table {
		for _, c := range row {
			if c.State != nil && c.State.Index > 0 {
				s.Learned++
			}
		}
	}

	compressed, err := compress(data)
	if err != nil {
		return nil, err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO grid_snapshots
		(snapshot_id, created_unix_nanos, grid_json_gz, rows, cols, learned_cells, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CreatedAt.UnixNano(), compressed, s.Rows, s.Cols, s.Learned, s.Reason)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return s, nil
}

// LatestSnapshot returns the newest snapshot with its grid.
func (db *DB) LatestSnapshot(ctx context.Context) (*GridSnapshot, error) {
	row := db.QueryRowContext(ctx, `SELECT snapshot_id, created_unix_nanos, rows, cols, learned_cells, reason, grid_json_gz
		FROM grid_snapshots ORDER BY created_unix_nanos DESC, rowid DESC LIMIT 1`)
	return scanSnapshot(row)
}

// GetSnapshot returns one snapshot with its grid.
func (db *DB) GetSnapshot(ctx context.Context, id string) (*GridSnapshot, error) {
	row := db.QueryRowContext(ctx, `SELECT snapshot_id, created_unix_nanos, rows, cols, learned_cells, reason, grid_json_gz
		FROM grid_snapshots WHERE snapshot_id = ?`, id)
	return scanSnapshot(row)
}

// ListSnapshots returns up to limit snapshots, newest first, without grids.
func (db *DB) ListSnapshots(ctx context.Context, limit int) ([]GridSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT snapshot_id, created_unix_nanos, rows, cols, learned_cells, reason
		FROM grid_snapshots ORDER BY created_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GridSnapshot
	for rows.Next() {
		var s GridSnapshot
		var nanos int64
		if err := rows.Scan(&s.ID, &nanos, &s.Rows, &s.Cols, &s.Learned, &s.Reason); err != nil {
			return nil, err
		}
		s.CreatedAt = time.Unix(0, nanos).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneSnapshots deletes all but the newest keep snapshots and returns how
// many were removed.
func (db *DB) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	res, err := db.ExecContext(ctx, `DELETE FROM grid_snapshots WHERE snapshot_id NOT IN (
		SELECT snapshot_id FROM grid_snapshots ORDER BY created_unix_nanos DESC, rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

func scanSnapshot(row *sql.Row) (*GridSnapshot, error) {
	var s GridSnapshot
	var nanos int64
	var compressed []byte
	err := row.Scan(&s.ID, &nanos, &s.Rows, &s.Cols, &s.Learned, &s.Reason, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(0, nanos).UTC()
	if s.Grid, err = decompress(compressed); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.ID, err)
	}
	return &s, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
