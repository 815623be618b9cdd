package models

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrMissingField is returned when a metadata key is absent.
	ErrMissingField = errors.New("missing metadata field")
	// ErrNotNumeric is returned when a metadata value is not a number.
	ErrNotNumeric = errors.New("metadata field is not numeric")
)

// Metadata is the flat company metadata map returned by a provider.
// Values are float64, string, bool or nil. There is no schema.
type Metadata map[string]any

// Float returns the numeric value stored under key.
func (m Metadata) Float(key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s=%v", ErrNotNumeric, key, v)
	}
}

// String returns the value under key formatted as text, or "" when absent.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
