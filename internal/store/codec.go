package store

import (
	"encoding/json"
	"time"
)

// Field decoding is deliberately forgiving: one malformed record must not
// block an entire feed, so invalid timestamps default to now and missing
// counters to zero.

// TimeField reads a timestamp field, accepting RFC3339 strings and unix
// epoch numbers.
func TimeField(d Document, field string) time.Time {
	v, ok := d.Data[field]
	if !ok || v == nil {
		return time.Now().UTC()
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	case float64:
		return time.Unix(int64(t), 0).UTC()
	case int64:
		return time.Unix(t, 0).UTC()
	}
	return time.Now().UTC()
}

// OptionalTimeField reads a timestamp that may legitimately be absent.
func OptionalTimeField(d Document, field string) *time.Time {
	v, ok := d.Data[field]
	if !ok || v == nil {
		return nil
	}
	t := TimeField(d, field)
	return &t
}

// IntField reads a numeric field, defaulting to 0.
func IntField(d Document, field string) int {
	switch n := d.Data[field].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// StringField reads a string field, defaulting to "".
func StringField(d Document, field string) string {
	if s, ok := d.Data[field].(string); ok {
		return s
	}
	return ""
}

// BoolField reads a boolean field, defaulting to false.
func BoolField(d Document, field string) bool {
	if b, ok := d.Data[field].(bool); ok {
		return b
	}
	return false
}

// StringsField reads an array-of-strings field, skipping non-string entries.
func StringsField(d Document, field string) []string {
	raw, ok := d.Data[field].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// DecodeInto remarshals an arbitrary nested value into dst. Used for
// embedded structures such as submission arrays and unlocked maps.
func DecodeInto(value interface{}, dst interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
