package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateJSONRoundTrip(t *testing.T) {
	d, err := ParseDate("2030-06-15")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `"2030-06-15"` {
		t.Fatalf("marshaled = %s, want quoted YYYY-MM-DD", raw)
	}

	var back Date
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Fatalf("round trip mismatch: %s vs %s", back, d)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "15-06-2030", "2030/06/15", "not a date"} {
		if _, err := ParseDate(raw); err == nil {
			t.Fatalf("ParseDate(%q) succeeded, want error", raw)
		}
	}
}

func TestDateDropsTimeOfDay(t *testing.T) {
	at := time.Date(2030, 6, 15, 23, 45, 12, 999, time.UTC)
	d := NewDate(at)
	if d.Hour() != 0 || d.Minute() != 0 || d.Second() != 0 {
		t.Fatalf("date kept a time-of-day component: %v", d.Time)
	}
}

func TestDaysUntil(t *testing.T) {
	from, _ := ParseDate("2030-06-15")
	to, _ := ParseDate("2030-06-20")
	if got := from.DaysUntil(to); got != 5 {
		t.Fatalf("DaysUntil = %d, want 5", got)
	}
	if got := to.DaysUntil(from); got != -5 {
		t.Fatalf("reverse DaysUntil = %d, want -5", got)
	}
}

func TestBatchExpired(t *testing.T) {
	today, _ := ParseDate("2030-06-15")

	cases := []struct {
		expiry string
		want   bool
	}{
		{"2030-06-14", true},
		{"2030-06-15", true}, // expiring today counts as expired
		{"2030-06-16", false},
	}
	for _, tc := range cases {
		expiry, _ := ParseDate(tc.expiry)
		b := Batch{ExpiryDate: expiry}
		if got := b.Expired(today); got != tc.want {
			t.Fatalf("Expired(%s as of %s) = %v, want %v", tc.expiry, today, got, tc.want)
		}
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{10.004, 10.00},
		{10.006, 10.01},
		{2.675, 2.67}, // float representation of 2.675 sits just under the half cent
		{-1.005, -1.0},
		{0, 0},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Fatalf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
