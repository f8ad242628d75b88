package pipeline

import (
	"errors"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantKey string
		wantVal float64
		wantErr bool
	}{
		{"clean object", `{"a": 1}`, "a", 1, false},
		{"object with surrounding noise", `prose before {"a": 1} prose after`, "a", 1, false},
		{"fenced object", "```json\n{\"a\": 1}\n```", "a", 1, false},
		{"nested braces", `noise {"a": 1, "b": {"c": 2}} noise`, "a", 1, false},
		{"brace inside string value", `{"a": 1, "s": "has } brace"}`, "a", 1, false},
		{"no braces", "nothing structured here", "", 0, true},
		{"unbalanced", `{"a": 1`, "", 0, true},
		{"empty", "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrNoStructuredData) {
					t.Fatalf("Extract() error = %v, want ErrNoStructuredData", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if v, ok := got[tt.wantKey].(float64); !ok || v != tt.wantVal {
				t.Errorf("Extract()[%q] = %v, want %v", tt.wantKey, got[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestExtractSkipsFalseStart(t *testing.T) {
	// The first { opens an invalid span; the parser must move on and find
	// the real object.
	got, err := Extract(`weird {not json} then {"a": 7}`)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if v := got["a"].(float64); v != 7 {
		t.Errorf("Extract()[a] = %v, want 7", v)
	}
}
