package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of appointment dates.
const DateLayout = "2006-01-02"

var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// TimeOfDay is a minute-resolution wall-clock time, counted in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:mm" and "HH:mm:ss". Times are minute resolution, so
// a non-zero seconds part is rejected rather than truncated.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			return 0, fmt.Errorf("%w: %q has seconds", ErrInvalidTimeOfDay, s)
		}
		return TimeOfDay(t.Hour()*60 + t.Minute()), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
}

// MustTimeOfDay panics on malformed input. Intended for constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Value stores the time in a postgres time column.
func (t TimeOfDay) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", t.Hour(), t.Minute()), nil
}

// Scan reads postgres time values, which arrive either as text or as time.Time.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
	case []byte:
		parsed, err := ParseTimeOfDay(string(v))
		if err != nil {
			return err
		}
		*t = parsed
	case time.Time:
		*t = TimeOfDay(v.Hour()*60 + v.Minute())
	case nil:
		*t = 0
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
	return nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and [bStart, bEnd) intersect.
// Ranges that only touch at a boundary do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}

// ParseDate parses a calendar date in DateLayout. RFC3339 timestamps are accepted
// and reduced to their date part.
func ParseDate(s string) (time.Time, error) {
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}
