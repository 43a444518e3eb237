package message

import (
	"fmt"
	"regexp"
	"time"
)

// referenceCodePattern is the canonical wire form of a reference code:
// CTX-YYYY-MMDD-NNN with a zero-padded per-day sequence.
var referenceCodePattern = regexp.MustCompile(`^CTX-\d{4}-\d{4}-\d{3}$`)

// MaxDailySequence is the highest sequence number the reference code
// encoding can represent within one day.
const MaxDailySequence = 999

// referenceCodeDayFormat renders a time as the YYYY-MMDD portion of a code.
const referenceCodeDayFormat = "2006-0102"

// ReferenceCode is the opaque identity of a unit of work (a workflow or a
// sub-task). Two codes are equal iff their string forms are equal; the zero
// value is the absent code.
type ReferenceCode struct {
	value string
}

// ParseReferenceCode validates s against the canonical format and returns the
// code. The empty string and anything not matching CTX-YYYY-MMDD-NNN are
// rejected.
func ParseReferenceCode(s string) (ReferenceCode, error) {
	if !referenceCodePattern.MatchString(s) {
		return ReferenceCode{}, fmt.Errorf("invalid reference code %q", s)
	}
	return ReferenceCode{value: s}, nil
}

// MustReferenceCode is ParseReferenceCode that panics on invalid input.
// Intended for tests and compile-time constants.
func MustReferenceCode(s string) ReferenceCode {
	code, err := ParseReferenceCode(s)
	if err != nil {
		panic(err)
	}
	return code
}

// NewReferenceCode builds a code for the given day (UTC) and sequence number.
func NewReferenceCode(day time.Time, seq int) (ReferenceCode, error) {
	if seq < 0 || seq > MaxDailySequence {
		return ReferenceCode{}, fmt.Errorf("reference code sequence %d out of range [0,%d]", seq, MaxDailySequence)
	}
	return ReferenceCode{value: fmt.Sprintf("CTX-%s-%03d", day.UTC().Format(referenceCodeDayFormat), seq)}, nil
}

// String returns the canonical string form, or "" for the zero value.
func (r ReferenceCode) String() string {
	return r.value
}

// IsZero reports whether the code is absent.
func (r ReferenceCode) IsZero() bool {
	return r.value == ""
}

// MarshalJSON encodes the code as its string form.
func (r ReferenceCode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.value + `"`), nil
}

// UnmarshalJSON decodes and validates a code. An empty string decodes to the
// zero value so envelopes without a code round-trip cleanly.
func (r *ReferenceCode) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("reference code must be a JSON string, got %s", s)
	}
	s = s[1 : len(s)-1]
	if s == "" {
		*r = ReferenceCode{}
		return nil
	}
	code, err := ParseReferenceCode(s)
	if err != nil {
		return err
	}
	*r = code
	return nil
}
