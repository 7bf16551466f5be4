package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps values in a two-column table named after the store
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore connects to url and creates the table if needed
func NewPostgresStore(ctx context.Context, url, name string) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres state store requires database_url")
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	s := &PostgresStore{pool: pool, table: tableIdentifier(name)}
	if _, err := pool.Exec(ctx, s.createTableSQL()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", s.table, err)
	}

	return s, nil
}

func tableIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (s *PostgresStore) createTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM `+s.table+` WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO `+s.table+` (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, key, value)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE key = $1`, key)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
