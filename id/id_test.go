package id

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_PrefixRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		prefix Prefix
	}{
		{"task", PrefixTask},
		{"worker", PrefixWorker},
		{"record", PrefixRecord},
		{"cron", PrefixCron},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			generated := New(tc.prefix)
			if generated.IsNil() {
				t.Fatal("expected non-nil ID")
			}
			if generated.Prefix() != tc.prefix {
				t.Fatalf("prefix = %q, want %q", generated.Prefix(), tc.prefix)
			}
			if !strings.HasPrefix(generated.String(), string(tc.prefix)+"_") {
				t.Fatalf("string %q missing prefix %q", generated.String(), tc.prefix)
			}

			parsed, err := Parse(generated.String())
			if err != nil {
				t.Fatalf("parse round trip: %v", err)
			}
			if parsed.String() != generated.String() {
				t.Fatalf("round trip mismatch: %q != %q", parsed.String(), generated.String())
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "not a typeid", "task_"} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("expected parse error for %q", s)
		}
	}
}

func TestParseWithPrefix_Mismatch(t *testing.T) {
	taskID := NewTaskID()
	if _, err := ParseWorkerID(taskID.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
	if _, err := ParseTaskID(taskID.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestID_KSortable(t *testing.T) {
	// UUIDv7-based suffixes generated in sequence must sort ascending.
	first := NewTaskID()
	second := NewTaskID()
	if first.String() > second.String() {
		t.Fatalf("expected %q <= %q", first.String(), second.String())
	}
}

func TestID_JSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID ID `json:"id"`
	}

	original := wrapper{ID: NewTaskID()}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID.String() != original.ID.String() {
		t.Fatalf("round trip mismatch: %q != %q", decoded.ID.String(), original.ID.String())
	}
}

func TestNil_Marshal(t *testing.T) {
	if Nil.String() != "" {
		t.Fatalf("Nil.String() = %q, want empty", Nil.String())
	}
	data, err := Nil.MarshalText()
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty text for Nil, got %q", data)
	}

	var decoded ID
	if err := decoded.UnmarshalText(nil); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if !decoded.IsNil() {
		t.Fatal("expected Nil after unmarshalling empty text")
	}
}
