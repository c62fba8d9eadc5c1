package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS product (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL UNIQUE,
	last_success_timestamp TEXT,
	last_failure_timestamp TEXT
);

CREATE TABLE IF NOT EXISTS product_status (
	product_id TEXT PRIMARY KEY REFERENCES product(id) ON DELETE CASCADE,
	status     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteRepository implements Repository backed by a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) a SQLite database at path and applies
// the schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("product: open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("product: apply schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Put upserts a product and its current status.
func (r *SQLiteRepository) Put(ctx context.Context, p Product, status Status) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("product: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product (id, name, last_success_timestamp, last_failure_timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_success_timestamp = excluded.last_success_timestamp,
			last_failure_timestamp = excluded.last_failure_timestamp`,
		p.ID, p.Name, formatTime(p.LastSuccessTimestamp), formatTime(p.LastFailureTimestamp))
	if err != nil {
		return fmt.Errorf("product: upsert %q: %w", p.Name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_status (product_id, status, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		p.ID, string(status), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("product: upsert status for %q: %w", p.Name, err)
	}

	return tx.Commit()
}

func (r *SQLiteRepository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, last_success_timestamp, last_failure_timestamp FROM product ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("product: list: %w", err)
	}
	defer rows.Close()

	// An empty table lists as [] rather than null.
	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("product: list: %w", err)
	}
	return products, nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, last_success_timestamp, last_failure_timestamp FROM product WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return p, err
}

func (r *SQLiteRepository) FindByName(ctx context.Context, name string) (*Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, last_success_timestamp, last_failure_timestamp FROM product WHERE name = ?`, name)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: name %q", ErrNotFound, name)
	}
	return p, err
}

func (r *SQLiteRepository) CurrentStatus(ctx context.Context, p Product) (Status, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM product_status WHERE product_id = ?`, p.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusDidNotRun, nil
	}
	if err != nil {
		return "", fmt.Errorf("product: status of %q: %w", p.Name, err)
	}
	return Status(status), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*Product, error) {
	var (
		p                     Product
		lastSuccess, lastFail sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Name, &lastSuccess, &lastFail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("product: scan: %w", err)
	}

	var err error
	if p.LastSuccessTimestamp, err = parseTime(lastSuccess); err != nil {
		return nil, err
	}
	if p.LastFailureTimestamp, err = parseTime(lastFail); err != nil {
		return nil, err
	}
	return &p, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("product: parse timestamp %q: %w", s.String, err)
	}
	return &t, nil
}
