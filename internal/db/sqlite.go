package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// sqliteBusyTimeout bounds how long a connection waits on a held lock
	// before surfacing SQLITE_BUSY.
	sqliteBusyTimeout = 5 * time.Second

	// sqliteReaderConns sizes the read-only pool. WAL lets readers run
	// against snapshots while the single writer proceeds, so a handful
	// covers the registry and sequence lookups.
	sqliteReaderConns = 4
)

// OpenSQLite opens the write handle: a single connection with WAL
// journaling and foreign keys on. The file and its directory are created on
// first run.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	path := absSQLitePath(dbPath)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare database directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}

	conn, err := sql.Open("sqlite3", sqliteDSN(path, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writes so they never contend with each
	// other; readers go through OpenSQLiteReader.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	return conn, nil
}

// OpenSQLiteReader opens the read-only pool for the same database file.
// WAL snapshots keep these connections from blocking on, or being blocked
// by, the writer.
func OpenSQLiteReader(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", sqliteDSN(absSQLitePath(dbPath), true))
	if err != nil {
		return nil, fmt.Errorf("failed to open read-only database: %w", err)
	}

	conn.SetMaxOpenConns(sqliteReaderConns)
	conn.SetMaxIdleConns(sqliteReaderConns)

	return conn, nil
}

func sqliteDSN(path string, readOnly bool) string {
	base := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d&_cache=shared",
		path, int(sqliteBusyTimeout/time.Millisecond))
	if readOnly {
		return base + "&_mode=ro"
	}
	// Journal mode and sync level are database-wide, so only the writer
	// sets them.
	return base + "&_mode=rwc&_journal_mode=WAL&_synchronous=NORMAL"
}

func absSQLitePath(dbPath string) string {
	if dbPath == "" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
