package refcode

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLStore persists per-day counters in a relational database so codes stay
// unique across restarts. The same implementation serves SQLite and
// PostgreSQL; placeholders are rebound per driver.
type SQLStore struct {
	db *sqlx.DB // writer
}

// Ensure SQLStore implements SequenceStore interface
var _ SequenceStore = (*SQLStore)(nil)

// NewSQLStore creates the store on the shared writer pool and ensures its
// schema exists.
func NewSQLStore(writer *sqlx.DB) (*SQLStore, error) {
	store := &SQLStore{db: writer}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the sequence table if it doesn't exist
func (s *SQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reference_sequences (
		day TEXT PRIMARY KEY,
		last_seq INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Next advances the counter for day inside a single upsert statement, so
// concurrent callers serialize on the row and never see the same value.
func (s *SQLStore) Next(ctx context.Context, day string) (int, error) {
	query := s.db.Rebind(`
		INSERT INTO reference_sequences (day, last_seq)
		VALUES (?, 1)
		ON CONFLICT (day) DO UPDATE SET last_seq = reference_sequences.last_seq + 1
		RETURNING last_seq
	`)
	var seq int
	if err := s.db.QueryRowContext(ctx, query, day).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to advance sequence for %s: %w", day, err)
	}
	return seq, nil
}
