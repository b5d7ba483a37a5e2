package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const blobsTable = "blobs"

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection keeps writes serialized inside the process
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the embedded schema migrations
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("migration error setting dialect for db: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// SQLiteStorage keeps one named blob in the blobs table
type SQLiteStorage struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

// NewSQLiteStorage creates a store for the blob called name
func NewSQLiteStorage(db *sql.DB, name string) *SQLiteStorage {
	return &SQLiteStorage{
		db:   db,
		name: name,
		now:  time.Now,
	}
}

// Load reads the blob
func (s *SQLiteStorage) Load(ctx context.Context) ([]byte, error) {
	query, args, err := sq.Select("data").
		From(blobsTable).
		Where(sq.Eq{"name": s.name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var data []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load %s blob: %w", s.name, err)
	}
	return data, nil
}

// Save upserts the blob, bumping its version
func (s *SQLiteStorage) Save(ctx context.Context, data []byte) error {
	query, args, err := sq.Insert(blobsTable).
		Columns("name", "data", "version", "updated_at").
		Values(s.name, data, 1, s.now().UTC().Format(time.RFC3339)).
		Suffix("ON CONFLICT(name) DO UPDATE SET data = excluded.data, version = blobs.version + 1, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save %s blob: %w", s.name, err)
	}
	return nil
}
