// Package timestamp provides tolerant timestamp parsing for telemetry
// payloads. Sources deliver timestamps as RFC3339 strings, Unix seconds, or
// Unix milliseconds; all forms normalize to time.Time in UTC.
//
// Zero value semantics: a missing or unparseable timestamp yields the zero
// time.Time, never an error. Telemetry timestamps are informational, not
// required fields.
package timestamp

import (
	"encoding/json"
	"time"
)

// Values at or above this are interpreted as milliseconds rather than
// seconds. Corresponds to 2001-09-09 in seconds, 1970-01-11 in millis.
const millisCutoff = 1e12

// FromAny converts a decoded JSON value to a time.Time. Supported forms:
// RFC3339/RFC3339Nano strings, json.Number, float64 and integer Unix
// seconds or milliseconds. Anything else yields the zero time.
func FromAny(v any) time.Time {
	switch t := v.(type) {
	case string:
		return parseString(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fromUnixNumeric(f)
		}
		return time.Time{}
	case float64:
		return fromUnixNumeric(t)
	case int64:
		return fromUnixNumeric(float64(t))
	case int:
		return fromUnixNumeric(float64(t))
	default:
		return time.Time{}
	}
}

func parseString(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func fromUnixNumeric(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	if f >= millisCutoff {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// Format renders a timestamp as RFC3339 in UTC; the zero time renders empty.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
