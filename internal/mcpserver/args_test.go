package mcpserver

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	def := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Time
	}{
		{in: "", want: def},
		{in: "2024-05-20", want: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
		{in: "2024-05-20T08:30:00", want: time.Date(2024, 5, 20, 8, 30, 0, 0, time.UTC)},
		{in: "2024-05-20T08:30:00+02:00", want: time.Date(2024, 5, 20, 6, 30, 0, 0, time.UTC)},
		{in: " 2024-05-20T08:30:00Z ", want: time.Date(2024, 5, 20, 8, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseDate(tc.in, def)
		if err != nil {
			t.Fatalf("parseDate(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) || got.Location() != time.UTC {
			t.Fatalf("parseDate(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"yesterday", "20/05/2024", "2024-13-01"} {
		if _, err := parseDate(in, time.Time{}); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
