package core

import (
	"testing"
	"time"
)

func TestParseFileDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 15, 0, time.UTC)

	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"2024-03-05T14:30:15 UTC", want, false},
		{"2024-03-05T14:30:15Z", want, false},
		{"2024-03-05T16:30:15+02:00", want, false},
		{"2024-03-05T14:30:15.999Z", want, false},
		{"Tue, 05 Mar 2024 14:30:15 GMT", want, false},
		{"Tuesday, 05-Mar-24 14:30:15 GMT", want, false},
		{"Tue Mar  5 14:30:15 2024", want, false},
		{"2024-03-05 14:30:15", want, false},
		{"  2024-03-05T14:30:15 UTC  ", want, false},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFileDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFileDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseFileDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatFileDate(t *testing.T) {
	local := time.FixedZone("EST", -5*3600)
	ts := time.Date(2024, 3, 5, 9, 30, 15, 500_000_000, local)

	got := FormatFileDate(ts)
	if got != "2024-03-05T14:30:15 UTC" {
		t.Errorf("FormatFileDate() = %q, want %q", got, "2024-03-05T14:30:15 UTC")
	}

	back, err := ParseFileDate(got)
	if err != nil {
		t.Fatalf("ParseFileDate error = %v", err)
	}
	if !back.Equal(NormalizeTime(ts)) {
		t.Errorf("round trip = %v, want %v", back, NormalizeTime(ts))
	}
}
