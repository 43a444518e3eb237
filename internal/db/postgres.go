package db

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool bounds applied when the configuration leaves them unset.
const (
	defaultPGMaxConns  = 25
	defaultPGIdleConns = 5
)

// OpenPostgres opens a PostgreSQL handle through the pgx stdlib driver and
// verifies the server is reachable before returning it.
func OpenPostgres(dsn string, maxConns, idleConns int) (*sql.DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultPGMaxConns
	}
	if idleConns <= 0 {
		idleConns = defaultPGIdleConns
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(idleConns)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return conn, nil
}
