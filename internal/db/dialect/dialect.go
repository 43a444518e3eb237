// Package dialect carries the engine-specific bits shared by the relational
// stores: driver names and the portable column encodings for booleans and
// timestamps.
package dialect

import "time"

// Driver names as registered with database/sql.
const (
	SQLite3 = "sqlite3"
	PGX     = "pgx"
)

// BoolToInt renders a flag for 0/1 integer columns, the one boolean shape
// both engines accept unchanged.
func BoolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// FormatTime renders a timestamp for TEXT columns. RFC 3339 survives both
// engines without driver-side conversion and round-trips exactly through
// ParseTime.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime reads a timestamp stored by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
