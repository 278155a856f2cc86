package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONBMap is a map persisted as a Postgres jsonb column.
type JSONBMap map[string]any

// Value implements driver.Valuer.
func (m JSONBMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONBMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		s, ok := src.(string)
		if !ok {
			return fmt.Errorf("jsonb scan: unsupported type %T", src)
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, m)
}

// StringSlice is a []string persisted as a Postgres jsonb column, used for
// the exclusion-regex list and the download blocklist.
type StringSlice []string

// Value implements driver.Valuer.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(s))
}

// Scan implements sql.Scanner.
func (s *StringSlice) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		str, ok := src.(string)
		if !ok {
			return fmt.Errorf("string slice scan: unsupported type %T", src)
		}
		b = []byte(str)
	}
	return json.Unmarshal(b, s)
}
