package db

import (
	"fmt"
	"time"
)

// SQLite datetime format (from datetime('now'))
const SQLiteTimeFormat = "2006-01-02 15:04:05"

// formatTime renders t the way the snapshot tables store it.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// NullTime handles scanning SQLite TEXT datetime columns.
type NullTime struct {
	Time  time.Time
	Valid bool
}

func (t *NullTime) Scan(value any) error {
	if value == nil {
		t.Valid = false
		return nil
	}
	var str string
	switch v := value.(type) {
	case []byte:
		str = string(v)
	case string:
		str = v
	case time.Time:
		t.Time, t.Valid = v, true
		return nil
	default:
		return fmt.Errorf("cannot scan %T into NullTime", value)
	}
	if str == "" {
		t.Valid = false
		return nil
	}
	for _, format := range []string{time.RFC3339Nano, time.RFC3339, SQLiteTimeFormat} {
		if parsed, err := time.Parse(format, str); err == nil {
			t.Time = parsed
			t.Valid = true
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", str)
}
