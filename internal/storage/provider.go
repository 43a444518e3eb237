// Package storage opens the relational backend shared by the durable stores.
package storage

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/common/config"
	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/db"
	"github.com/cortexhq/cortex/internal/db/dialect"
)

// Provide opens the connection pool for the configured storage driver. The
// memory driver returns a nil pool; callers fall back to in-memory stores.
func Provide(cfg config.StorageConfig, dbCfg config.DatabaseConfig, log *logger.Logger) (*db.Pool, func() error, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", config.StorageDriverMemory:
		return nil, func() error { return nil }, nil

	case config.StorageDriverSQLite:
		writerConn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		readerConn, err := db.OpenSQLiteReader(cfg.SQLitePath)
		if err != nil {
			_ = writerConn.Close()
			return nil, nil, fmt.Errorf("failed to open sqlite reader: %w", err)
		}
		pool := db.NewPool(sqlx.NewDb(writerConn, dialect.SQLite3), sqlx.NewDb(readerConn, dialect.SQLite3))
		if log != nil {
			log.Info("Storage initialized",
				zap.String("driver", config.StorageDriverSQLite),
				zap.String("db_path", cfg.SQLitePath))
		}
		cleanup := func() error {
			// Refresh query planner statistics before close.
			_, _ = writerConn.Exec("PRAGMA optimize")
			return pool.Close()
		}
		return pool, cleanup, nil

	case config.StorageDriverPostgres:
		conn, err := db.OpenPostgres(dbCfg.DSN(), dbCfg.MaxConns, dbCfg.MinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		// pgx pools internally, so a single handle serves reads and writes.
		sqlxDB := sqlx.NewDb(conn, dialect.PGX)
		pool := db.NewPool(sqlxDB, sqlxDB)
		if log != nil {
			log.Info("Storage initialized",
				zap.String("driver", config.StorageDriverPostgres),
				zap.String("db_host", dbCfg.Host),
				zap.String("db_name", dbCfg.DBName))
		}
		return pool, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
