package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite is a Store persisted in a single sqlite file
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies migrations
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Get returns the value stored under key for id
func (s *SQLite) Get(ctx context.Context, scope Scope, id, key string) ([]byte, bool, error) {
	if err := validScope(scope); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE scope = ? AND owner_id = ? AND key = ?`,
		string(scope), id, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s/%s: %w", scope, id, key, err)
	}
	return value, true, nil
}

// Set stores value under key for id
func (s *SQLite) Set(ctx context.Context, scope Scope, id, key string, value []byte) error {
	if err := validScope(scope); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (scope, owner_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(scope, owner_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(scope), id, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s/%s: %w", scope, id, key, err)
	}
	return nil
}

// Delete removes key for id
func (s *SQLite) Delete(ctx context.Context, scope Scope, id, key string) error {
	if err := validScope(scope); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE scope = ? AND owner_id = ? AND key = ?`,
		string(scope), id, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s/%s: %w", scope, id, key, err)
	}
	return nil
}

// List returns every id in scope holding key
func (s *SQLite) List(ctx context.Context, scope Scope, key string) (map[string][]byte, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, value FROM kv WHERE scope = ? AND key = ?`,
		string(scope), key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s: %w", scope, key, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var value []byte
		if err := rows.Scan(&id, &value); err != nil {
			return nil, err
		}
		out[id] = value
	}
	return out, rows.Err()
}

// Close releases the database handle
func (s *SQLite) Close() error {
	return s.db.Close()
}
