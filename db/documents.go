package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entity ids are platform snowflakes; sqlite integers are signed, so ids are
// stored as their two's complement int64 and converted back on read.
func toColumn(id uint64) int64 { return int64(id) }
func fromColumn(v int64) uint64 { return uint64(v) }

// Upsert writes body as the document for (kind, id), replacing any previous value.
func (db *DB) Upsert(ctx context.Context, kind string, id uint64, body []byte) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO documents (kind, entity_id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, entity_id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, kind, toColumn(id), string(body), now, now)
	if err != nil {
		return fmt.Errorf("upsert %s/%d: %w", kind, id, err)
	}
	return nil
}

// Find returns the body stored for (kind, id), or nil if there is none.
func (db *DB) Find(ctx context.Context, kind string, id uint64) ([]byte, error) {
	var body string
	err := db.QueryRowContext(ctx, `
		SELECT body FROM documents WHERE kind = ? AND entity_id = ?
	`, kind, toColumn(id)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s/%d: %w", kind, id, err)
	}
	return []byte(body), nil
}

// FindAll returns every body stored under kind, ordered by entity id.
func (db *DB) FindAll(ctx context.Context, kind string) ([][]byte, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT body FROM documents WHERE kind = ? ORDER BY entity_id
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("find all %s: %w", kind, err)
	}
	defer rows.Close()

	var bodies [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		bodies = append(bodies, []byte(body))
	}
	return bodies, rows.Err()
}

// Kinds lists every document kind that has at least one stored record.
func (db *DB) Kinds(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT kind FROM documents ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("list kinds: %w", err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan kind: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, rows.Err()
}

// Entities lists the entity ids stored under kind.
func (db *DB) Entities(ctx context.Context, kind string) ([]uint64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT entity_id FROM documents WHERE kind = ? ORDER BY entity_id
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("list entities %s: %w", kind, err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		ids = append(ids, fromColumn(v))
	}
	return ids, rows.Err()
}
