package dialect

import (
	"testing"
	"time"
)

func TestBoolToInt(t *testing.T) {
	if BoolToInt(true) != 1 {
		t.Error("expected 1 for true")
	}
	if BoolToInt(false) != 0 {
		t.Error("expected 0 for false")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	stamp := time.Date(2026, 8, 24, 15, 30, 45, 123456789, time.FixedZone("UTC+2", 2*3600))

	parsed, err := ParseTime(FormatTime(stamp))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(stamp) {
		t.Errorf("round-trip drifted: got %v, want %v", parsed, stamp)
	}
	if parsed.Location() != time.UTC {
		t.Error("stored timestamps must come back in UTC")
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "yesterday", "2026-08-24 09:00:00"} {
		if _, err := ParseTime(s); err == nil {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}
