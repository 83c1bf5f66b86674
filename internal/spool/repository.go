// Package spool persists ILP batches that could not be delivered so they can
// be replayed, oldest first, once the server is reachable again.
package spool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyBatch is returned when saving a batch with no payload or rows.
var ErrEmptyBatch = errors.New("spool: batch is empty")

// Batch is one drained block of complete ILP lines.
type Batch struct {
	ID        string    `json:"id"`
	Payload   []byte    `json:"-"`
	Rows      int       `json:"rows"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines the interface for spool operations.
type Repository interface {
	Save(ctx context.Context, payload []byte, rows int) (*Batch, error)
	Oldest(ctx context.Context, limit int) ([]Batch, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (batches int, rows int, err error)
}

// SQLiteRepository stores batches in the spool_batches table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new spool repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save stores a copy of payload as a new batch.
func (r *SQLiteRepository) Save(ctx context.Context, payload []byte, rows int) (*Batch, error) {
	if len(payload) == 0 || rows <= 0 {
		return nil, ErrEmptyBatch
	}

	b := &Batch{
		ID:        "spl-" + uuid.NewString(),
		Payload:   append([]byte(nil), payload...),
		Rows:      rows,
		Bytes:     len(payload),
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO spool_batches (id, payload, rows, bytes, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.Payload, b.Rows, b.Bytes, b.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting spool batch: %w", err)
	}
	return b, nil
}

// Oldest returns up to limit batches in the order they were saved.
func (r *SQLiteRepository) Oldest(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payload, rows, bytes, created_at
		 FROM spool_batches ORDER BY rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying spool batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Payload, &b.Rows, &b.Bytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning spool batch: %w", err)
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spool batches: %w", err)
	}
	return batches, nil
}

// Delete removes a batch after it has been delivered. Deleting an unknown ID
// is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM spool_batches WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting spool batch %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored batches and the rows they hold.
func (r *SQLiteRepository) Count(ctx context.Context) (batches int, rows int, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(rows), 0) FROM spool_batches",
	).Scan(&batches, &rows)
	if err != nil {
		return 0, 0, fmt.Errorf("counting spool batches: %w", err)
	}
	return batches, rows, nil
}
