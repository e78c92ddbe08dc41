package conversation

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	tests := []struct {
		name   string
		input  any
		wantOK bool
	}{
		{"seconds wrapper raw", json.RawMessage(`{"_seconds": 1700000000, "_nanoseconds": 0}`), true},
		{"seconds wrapper map", map[string]any{"seconds": float64(1700000000)}, true},
		{"iso string raw", json.RawMessage(`"2023-11-14T22:13:20Z"`), true},
		{"iso string", "2023-11-14T22:13:20.000Z", true},
		{"iso without zone", "2023-11-14T22:13:20", true},
		{"space separated", "2023-11-14 22:13:20", true},
		{"epoch seconds", float64(1700000000), true},
		{"epoch millis", float64(1700000000000), true},
		{"epoch millis raw", json.RawMessage(`1700000000000`), true},
		{"numeric string", "1700000000", true},
		{"time value", want, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseTimestamp(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !got.Equal(want) {
				t.Errorf("ParseTimestamp(%v) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestParseTimestamp_Malformed(t *testing.T) {
	inputs := []any{
		nil,
		json.RawMessage(nil),
		json.RawMessage(`null`),
		json.RawMessage(`{`),
		json.RawMessage(`"yesterday-ish"`),
		json.RawMessage(`{"_seconds": "soon"}`),
		json.RawMessage(`{"other": 1}`),
		json.RawMessage(`[1, 2]`),
		json.RawMessage(`true`),
		"",
		"not a date",
		float64(-5),
		time.Time{},
		struct{}{},
	}

	for _, input := range inputs {
		if _, ok := ParseTimestamp(input); ok {
			t.Errorf("ParseTimestamp(%#v) ok = true, want false", input)
		}
	}
}

func TestListTime(t *testing.T) {
	if got := ListTime(json.RawMessage(`"garbage"`), time.UTC); got != UnknownTime {
		t.Errorf("ListTime(garbage) = %q, want %q", got, UnknownTime)
	}
	if got := ListTime(json.RawMessage(`{"_seconds": 1700000000}`), time.UTC); got != "10:13:20 PM" {
		t.Errorf("ListTime(wrapper) = %q, want %q", got, "10:13:20 PM")
	}
}

func TestMessageTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)
	if got := MessageTime(nil, now, time.UTC); got != "09:05 AM" {
		t.Errorf("MessageTime(nil) = %q, want %q", got, "09:05 AM")
	}
	if got := MessageTime("2023-11-14T22:13:20Z", now, time.UTC); got != "10:13 PM" {
		t.Errorf("MessageTime(iso) = %q, want %q", got, "10:13 PM")
	}
}
