// Package sqlite stores scope artifact mappings in a SQLite database and
// serves them as an artifact.Source.
package sqlite

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/modreg/internal/log"
)

// DB owns the database connection and the repositories built on it.
type DB struct {
	conn      *sql.DB
	artifacts *ArtifactStore
}

// NewDB opens (creating if needed) the database at path, applies the
// standard pragmas and runs pending migrations. An existing database file
// is copied to path+".bak" before migrating.
func NewDB(path string, opts ...StoreOption) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := backup(path); err != nil {
		return nil, fmt.Errorf("failed to back up database: %w", err)
	}

	dsn := "file:" + path +
		"?_pragma=journal_mode(wal)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrateUp(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Info(log.CatDB, "database ready", "path", path)

	return &DB{conn: conn, artifacts: NewArtifactStore(conn, opts...)}, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Connection returns the underlying *sql.DB.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// ArtifactStore returns the artifact repository.
func (db *DB) ArtifactStore() *ArtifactStore {
	return db.artifacts
}

func backup(path string) error {
	src, err := os.Open(path) //nolint:gosec // G304: path comes from operator config
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(path+".bak", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // G304: derived from path
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}
