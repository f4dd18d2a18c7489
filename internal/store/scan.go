package store

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// sqliteTimestampFormats are the layouts the sqlite3 driver writes time.Time
// values with. Aggregates such as MIN/MAX lose the column type, so their
// results come back as text and must be parsed here.
var sqliteTimestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

// nullTimestamp scans a nullable timestamp delivered either as time.Time or text.
type nullTimestamp struct {
	Time  time.Time
	Valid bool
}

func (n *nullTimestamp) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("store: cannot scan %T into timestamp", value)
	}
}

func (n *nullTimestamp) parse(s string) error {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range sqliteTimestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("store: unrecognized timestamp %q", s)
}

func (n nullTimestamp) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Time, nil
}

func (n nullTimestamp) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// now returns the current time in UTC. Every stored timestamp goes through it
// so text comparisons in SQLite order the same way as time comparisons.
func now() time.Time {
	return time.Now().UTC()
}
