package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the scalar type of a column. Only the four types the
// engine can compare and convert are supported.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeTimestamp ColumnType = "timestamp"
)

func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(strings.ToLower(s)) {
	case TypeString:
		return TypeString, nil
	case TypeInteger:
		return TypeInteger, nil
	case TypeFloat:
		return TypeFloat, nil
	case TypeTimestamp:
		return TypeTimestamp, nil
	default:
		return "", fmt.Errorf("unknown column type: %q", s)
	}
}

type Column struct {
	Name string
	Type ColumnType
}

// Schema is an ordered sequence of columns. It is declared once per
// source and never mutated afterwards.
type Schema []Column

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// TypeOf returns the declared type of the named column.
func (s Schema) TypeOf(name string) (ColumnType, bool) {
	if i := s.Index(name); i >= 0 {
		return s[i].Type, true
	}
	return "", false
}

func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Row holds one value per schema column, in schema order. Values are
// string, int64, float64 or time.Time depending on the declared type.
type Row []any

// Conforms reports whether the row matches the schema exactly: same
// column count and every value of the declared Go type.
func (s Schema) Conforms(r Row) error {
	if len(r) != len(s) {
		return fmt.Errorf("row has %d values, schema declares %d columns", len(r), len(s))
	}
	for i, c := range s {
		if err := checkType(c.Type, r[i]); err != nil {
			return fmt.Errorf("column %s: %w", c.Name, err)
		}
	}
	return nil
}

func checkType(t ColumnType, v any) error {
	switch t {
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case TypeInteger:
		if _, ok := v.(int64); !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
	case TypeFloat:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
	case TypeTimestamp:
		if _, ok := v.(time.Time); !ok {
			return fmt.Errorf("expected time.Time, got %T", v)
		}
	}
	return nil
}

// Timestamp layouts accepted by ParseValue, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseValue converts a raw text field to the Go value for the declared
// column type.
func ParseValue(t ColumnType, raw string) (any, error) {
	switch t {
	case TypeString:
		return raw, nil
	case TypeInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("not a float: %q", raw)
		}
		return f, nil
	case TypeTimestamp:
		raw = strings.TrimSpace(raw)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("not a timestamp: %q", raw)
	default:
		return nil, fmt.Errorf("unknown column type: %q", t)
	}
}
