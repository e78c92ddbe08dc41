package conversation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// UnknownTime is shown in the conversation list when a timestamp cannot be parsed.
const UnknownTime = "Unknown time"

const (
	listTimeLayout    = "3:04:05 PM"
	messageTimeLayout = "03:04 PM"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp interprets the timestamp shapes the memory endpoints emit:
// {"_seconds": n[, "_nanoseconds": n]} wrappers, ISO-8601 strings, epoch
// seconds or milliseconds, raw JSON for any of those, and time.Time. It never
// panics; ok is false when nothing usable was found.
func ParseTimestamp(v any) (t time.Time, ok bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case json.RawMessage:
		return parseRaw(val)
	case []byte:
		return parseRaw(val)
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, !val.IsZero()
	case string:
		return parseString(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case float64:
		return fromEpoch(val)
	case int:
		return fromEpoch(float64(val))
	case int64:
		return fromEpoch(float64(val))
	case map[string]any:
		return parseWrapper(val)
	default:
		return time.Time{}, false
	}
}

func parseRaw(raw []byte) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return time.Time{}, false
	}
	return ParseTimestamp(decoded)
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

func parseWrapper(m map[string]any) (time.Time, bool) {
	for _, key := range []string{"_seconds", "seconds"} {
		raw, exists := m[key]
		if !exists {
			continue
		}
		secs, ok := raw.(float64)
		if !ok || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return time.Time{}, false
		}
		var nanos float64
		for _, nk := range []string{"_nanoseconds", "nanoseconds"} {
			if n, ok := m[nk].(float64); ok {
				nanos = n
			}
		}
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// ListTime formats a conversation timestamp for the sidebar, or UnknownTime.
func ListTime(v any, loc *time.Location) string {
	t, ok := ParseTimestamp(v)
	if !ok {
		return UnknownTime
	}
	return t.In(loc).Format(listTimeLayout)
}

// MessageTime formats a message timestamp, falling back to now.
func MessageTime(v any, now time.Time, loc *time.Location) string {
	t, ok := ParseTimestamp(v)
	if !ok {
		t = now
	}
	return t.In(loc).Format(messageTimeLayout)
}
