// internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"recordimages/internal/models"
)

// ErrRecordNotFound is returned when no row matches the id.
var ErrRecordNotFound = errors.New("storage: record not found")

type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := migrate(ctx, db); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool, db: db}, nil
}

func (s *Storage) Close() {
	s.db.Close()
	s.pool.Close()
}

func (s *Storage) CreateRecord(ctx context.Context, rec *models.Record) error {
	const op = "storage.CreateRecord"

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO records (id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		rec.ID.String(), rec.Title, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) GetRecord(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	const op = "storage.GetRecord"

	var (
		rec models.Record
		raw string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM records WHERE id = $1`,
		id.String()).Scan(&raw, &rec.Title, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec.ID, err = uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}

func (s *Storage) UpdateRecord(ctx context.Context, rec *models.Record) error {
	const op = "storage.UpdateRecord"

	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET title = $2, updated_at = $3 WHERE id = $1`,
		rec.ID.String(), rec.Title, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrRecordNotFound)
	}
	return nil
}

func (s *Storage) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeleteRecord"

	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrRecordNotFound)
	}
	return nil
}
