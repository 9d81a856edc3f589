package core

import (
	"testing"
	"time"
)

func intp(v int) *int { return &v }

func TestNewPeriodBoundaries(t *testing.T) {
	cases := []struct {
		month, year int
		wantEnd     string
	}{
		{2, 2024, "2024-02-29T23:59:59.999Z"},
		{2, 2023, "2023-02-28T23:59:59.999Z"},
		{12, 2024, "2024-12-31T23:59:59.999Z"},
		{4, 2025, "2025-04-30T23:59:59.999Z"},
	}
	for _, tc := range cases {
		p := NewPeriod(tc.month, tc.year)
		if got := p.End.Format("2006-01-02T15:04:05.000Z07:00"); got != tc.wantEnd {
			t.Fatalf("%d/%d end = %s, want %s", tc.month, tc.year, got, tc.wantEnd)
		}
		if p.Start.Day() != 1 || p.Start.Hour() != 0 || p.Start.Location() != time.UTC {
			t.Fatalf("%d/%d bad start %v", tc.month, tc.year, p.Start)
		}
	}
}

func TestResolvePeriodDefaults(t *testing.T) {
	now := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)

	p := ResolvePeriod(nil, nil, now)
	if p.Month != 7 || p.Year != 2025 {
		t.Fatalf("expected 7/2025, got %d/%d", p.Month, p.Year)
	}

	p = ResolvePeriod(intp(2), nil, now)
	if p.Month != 2 || p.Year != 2025 {
		t.Fatalf("expected 2/2025, got %d/%d", p.Month, p.Year)
	}

	p = ResolvePeriod(nil, intp(2024), now)
	if p.Month != 7 || p.Year != 2024 {
		t.Fatalf("expected 7/2024, got %d/%d", p.Month, p.Year)
	}

	p = ResolvePeriod(intp(2), intp(2024), now)
	if !p.Contains(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("leap day should be inside %s", p.Key())
	}
	if p.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("1 March should be outside %s", p.Key())
	}
}

func TestPeriodOfUsesUTC(t *testing.T) {
	// 00:30 on 1 March in UTC+2 is still February in UTC.
	at := time.Date(2025, 3, 1, 0, 30, 0, 0, time.FixedZone("EET", 2*3600))
	p := PeriodOf(at)
	if p.Month != 2 || p.Year != 2025 {
		t.Fatalf("expected 2/2025, got %d/%d", p.Month, p.Year)
	}
	if p.Key() != "2025-02" {
		t.Fatalf("unexpected key %s", p.Key())
	}
}

func TestTrendWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	w := TrendWindow(now)

	if !w.Start.Equal(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", w.Start)
	}
	if !w.End.Equal(time.Date(2025, 3, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC)) {
		t.Fatalf("unexpected end %v", w.End)
	}
	if w.Contains(time.Date(2024, 9, 30, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("September should be outside the window")
	}
	if !w.Contains(time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("end of current month should be inside the window")
	}
}
