package types

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// Record is a stored row as a column/value map. Values arrive from the
// driver as int64, float64, string, []byte or nil; entities are parsed out
// of a Record by ListFromBackend and ListitemFromBackend.
type Record map[string]any

// Has reports whether key is present with a non-nil value.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Int64 returns the integer value of key. Floats are truncated and numeric
// text is parsed.
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		return parseNumber(v)
	case []byte:
		return parseNumber(string(v))
	}
	return 0, false
}

// String returns the text value of key.
func (r Record) String(key string) (string, bool) {
	switch v := r[key].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

// Bool returns true when key holds a non-zero number.
func (r Record) Bool(key string) bool {
	n, ok := r.Int64(key)
	return ok && n != 0
}

func parseNumber(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

// malformed builds an ErrMalformedRecord naming the entity kind and field.
func malformed(kind, field string) error {
	return fmt.Errorf("%w: %s: missing or invalid %q", ErrMalformedRecord, kind, field)
}

// Timestamps are stored as Unix milliseconds; zero means "not set".

// Now returns the current time truncated to millisecond precision.
func Now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// nullMillis maps an unset timestamp to SQL NULL.
func nullMillis(ms int64) any {
	if ms == 0 {
		return nil
	}
	return ms
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// virtualSeq hands out negative placeholder ids so virtual entities stay
// distinguishable from each other before they are stored.
var virtualSeq atomic.Int64

func nextVirtualID() int64 {
	return -virtualSeq.Add(1)
}
