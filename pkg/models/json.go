package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB wraps any JSON-serializable value for storage in a jsonb column.
// Per spec.md invariant I8, every JSONB column defaults to an empty
// container rather than NULL, so read paths never need a null-check:
// Scan leaves the zero value (already an empty map/slice from New) in
// place when the column is NULL.
type JSONB[T any] struct {
	Val T
}

// NewJSONB wraps v.
func NewJSONB[T any](v T) JSONB[T] {
	return JSONB[T]{Val: v}
}

// Value implements driver.Valuer.
func (j JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Val)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (j *JSONB[T]) Scan(src any) error {
	if src == nil {
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("scan jsonb: unsupported type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &j.Val)
}

// StringSlice is a []string stored as jsonb, defaulting to an empty (not
// nil) slice so JSON-encoded responses render `[]` instead of `null`.
type StringSlice []string

// Value implements driver.Valuer.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		s = StringSlice{}
	}
	return json.Marshal([]string(s))
}

// Scan implements sql.Scanner.
func (s *StringSlice) Scan(src any) error {
	*s = StringSlice{}
	if src == nil {
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("scan string slice: unsupported type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// JSONMap is a map[string]any stored as jsonb, defaulting to an empty map.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		m = JSONMap{}
	}
	return json.Marshal(map[string]any(m))
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	*m = JSONMap{}
	if src == nil {
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("scan json map: unsupported type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*m = out
	return nil
}
