package main

import (
	"testing"
	"time"
)

func TestParseDue(t *testing.T) {
	// Friday
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    string
		cleared bool
		wantErr bool
	}{
		{in: "2024-04-15", want: "2024-04-15"},
		{in: "", cleared: true},
		{in: "none", cleared: true},
		{in: "None", cleared: true},
		{in: "tomorrow", want: "2024-03-02"},
		{in: "today", want: "2024-03-01"},
		{in: "gibberish", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDue(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDue(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.cleared {
				if got != nil {
					t.Errorf("parseDue(%q) = %v, want nil", tt.in, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("parseDue(%q) = nil", tt.in)
			}
			if s := got.Format(dueLayout); s != tt.want {
				t.Errorf("parseDue(%q) = %s, want %s", tt.in, s, tt.want)
			}
		})
	}
}
