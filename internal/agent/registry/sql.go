package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cortexhq/cortex/internal/agent"
	"github.com/cortexhq/cortex/internal/db/dialect"
)

// SQLRegistry persists registrations in a relational database so agents stay
// registered across process restarts. The same implementation serves SQLite
// and PostgreSQL; placeholders are rebound per driver.
//
// Capabilities are stored as a JSON column and capability matching happens
// in Go, which keeps the store free of engine-specific JSON operators.
type SQLRegistry struct {
	db *sqlx.DB // writer
	ro *sqlx.DB // reader
}

// Ensure SQLRegistry implements Registry interface
var _ Registry = (*SQLRegistry)(nil)

// registrationRow is the scan shape of one stored registration.
type registrationRow struct {
	AgentID      string `db:"agent_id"`
	Name         string `db:"name"`
	AgentType    string `db:"agent_type"`
	Capabilities string `db:"capabilities"`
	RegisteredAt string `db:"registered_at"`
	IsAvailable  int    `db:"is_available"`
}

// NewSQLRegistry creates the store on shared writer/reader pools and ensures
// its schema exists. Pass the same pool twice when the driver needs no
// read/write split.
func NewSQLRegistry(writer, reader *sqlx.DB) (*SQLRegistry, error) {
	r := &SQLRegistry{db: writer, ro: reader}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

// initSchema creates the registrations table if it doesn't exist
func (r *SQLRegistry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_registrations (
		agent_id      TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		agent_type    TEXT NOT NULL DEFAULT 'unknown',
		capabilities  TEXT NOT NULL DEFAULT '[]',
		registered_at TEXT NOT NULL,
		is_available  INTEGER NOT NULL DEFAULT 1
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Upsert inserts or replaces the registration for its agent ID.
func (r *SQLRegistry) Upsert(ctx context.Context, reg Registration) error {
	caps, err := json.Marshal(reg.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO agent_registrations (agent_id, name, agent_type, capabilities, registered_at, is_available)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET
			name          = excluded.name,
			agent_type    = excluded.agent_type,
			capabilities  = excluded.capabilities,
			registered_at = excluded.registered_at,
			is_available  = excluded.is_available
	`)
	_, err = r.db.ExecContext(ctx, query,
		reg.AgentID, reg.Name, reg.AgentType, string(caps),
		dialect.FormatTime(reg.RegisteredAt), dialect.BoolToInt(reg.IsAvailable))
	if err != nil {
		return fmt.Errorf("failed to upsert registration %s: %w", reg.AgentID, err)
	}
	return nil
}

// Get returns the registration for an agent ID.
func (r *SQLRegistry) Get(ctx context.Context, agentID string) (Registration, error) {
	query := r.ro.Rebind(`
		SELECT agent_id, name, agent_type, capabilities, registered_at, is_available
		FROM agent_registrations WHERE agent_id = ?
	`)
	var row registrationRow
	if err := r.ro.GetContext(ctx, &row, query, agentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Registration{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
		}
		return Registration{}, fmt.Errorf("failed to load registration %s: %w", agentID, err)
	}
	return row.toRegistration()
}

// FindByCapability returns available agents offering the capability, ordered
// by agent ID. Matching happens in Go over the available rows.
func (r *SQLRegistry) FindByCapability(ctx context.Context, capability string) ([]Registration, error) {
	query := r.ro.Rebind(`
		SELECT agent_id, name, agent_type, capabilities, registered_at, is_available
		FROM agent_registrations WHERE is_available = 1 ORDER BY agent_id
	`)
	var rows []registrationRow
	if err := r.ro.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}

	var out []Registration
	for _, row := range rows {
		reg, err := row.toRegistration()
		if err != nil {
			return nil, err
		}
		if reg.HasCapability(capability) {
			out = append(out, reg)
		}
	}
	return out, nil
}

// All returns every registration ordered by agent ID.
func (r *SQLRegistry) All(ctx context.Context) ([]Registration, error) {
	query := `
		SELECT agent_id, name, agent_type, capabilities, registered_at, is_available
		FROM agent_registrations ORDER BY agent_id
	`
	var rows []registrationRow
	if err := r.ro.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}

	out := make([]Registration, 0, len(rows))
	for _, row := range rows {
		reg, err := row.toRegistration()
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, nil
}

// SetAvailability flips the availability flag for an agent.
func (r *SQLRegistry) SetAvailability(ctx context.Context, agentID string, available bool) error {
	query := r.db.Rebind(`UPDATE agent_registrations SET is_available = ? WHERE agent_id = ?`)
	res, err := r.db.ExecContext(ctx, query, dialect.BoolToInt(available), agentID)
	if err != nil {
		return fmt.Errorf("failed to update availability for %s: %w", agentID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return nil
}

// Remove deletes the registration for an agent ID.
func (r *SQLRegistry) Remove(ctx context.Context, agentID string) error {
	query := r.db.Rebind(`DELETE FROM agent_registrations WHERE agent_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, agentID); err != nil {
		return fmt.Errorf("failed to remove registration %s: %w", agentID, err)
	}
	return nil
}

func (row registrationRow) toRegistration() (Registration, error) {
	var caps []agent.Capability
	if err := json.Unmarshal([]byte(row.Capabilities), &caps); err != nil {
		return Registration{}, fmt.Errorf("failed to decode capabilities for %s: %w", row.AgentID, err)
	}
	registeredAt, err := dialect.ParseTime(row.RegisteredAt)
	if err != nil {
		return Registration{}, fmt.Errorf("failed to parse registered_at for %s: %w", row.AgentID, err)
	}
	return Registration{
		AgentID:      row.AgentID,
		Name:         row.Name,
		AgentType:    row.AgentType,
		Capabilities: caps,
		RegisteredAt: registeredAt,
		IsAvailable:  row.IsAvailable != 0,
	}, nil
}
