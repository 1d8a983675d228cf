/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package datemath

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/timedimension/internal/period"
)

func TestAdvanceAppliesCalendarFields(t *testing.T) {
	base := time.Date(2020, 1, 31, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		d    period.Duration
		want time.Time
	}{
		{"one day", period.MustParse("P1D"), time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC)},
		{"month overflow into march", period.MustParse("P1M"), time.Date(2020, 3, 2, 10, 0, 0, 0, time.UTC)},
		{"twelve months roll the year", period.MustParse("P12M"), time.Date(2021, 1, 31, 10, 0, 0, 0, time.UTC)},
		{"weeks are seven days", period.MustParse("P2W"), time.Date(2020, 2, 14, 10, 0, 0, 0, time.UTC)},
		{"hours cross midnight", period.MustParse("PT15H"), time.Date(2020, 2, 1, 1, 0, 0, 0, time.UTC)},
		{"seconds carry", period.MustParse("PT90S"), time.Date(2020, 1, 31, 10, 1, 30, 0, time.UTC)},
		{"years then months", period.MustParse("P1Y1M"), time.Date(2021, 3, 3, 10, 0, 0, 0, time.UTC)},
		{"zero is a no-op", period.Duration{}, base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advance(base, tt.d, UTC)
			if !got.Equal(tt.want) {
				t.Fatalf("Advance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdvanceDoesNotModifyArgument(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	copyOfBase := base

	_ = Advance(base, period.MustParse("P1Y2M3DT4H"), UTC)

	if !base.Equal(copyOfBase) {
		t.Fatalf("argument changed to %v", base)
	}
}

func TestAdvanceLeapDay(t *testing.T) {
	leap := time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)
	got := Advance(leap, period.MustParse("P1Y"), UTC)
	want := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Advance(leap day, P1Y) = %v, want %v", got, want)
	}
}

func TestRetreatRestoresFixedLengthDurations(t *testing.T) {
	bases := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 2, 29, 23, 59, 59, 0, time.UTC),
		time.Date(1999, 12, 31, 12, 30, 0, 5e6, time.UTC),
	}
	durations := []string{"P1D", "P3W", "PT36H", "PT90M", "PT3600S", "P10DT5H3M2S", "-P2D"}

	for _, b := range bases {
		for _, text := range durations {
			d := period.MustParse(text)
			got := Retreat(Advance(b, d, UTC), d, UTC)
			if !got.Equal(b) {
				t.Errorf("Retreat(Advance(%v, %s)) = %v", b, text, got)
			}
		}
	}
}

// Month and year lengths vary, so the round trip is not guaranteed for them.
func TestRetreatDoesNotAlwaysRestoreMonths(t *testing.T) {
	base := time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)
	d := period.MustParse("P1M")

	got := Retreat(Advance(base, d, UTC), d, UTC)

	want := time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Retreat(Advance(Jan 31, P1M), P1M) = %v, want %v", got, want)
	}
	if got.Equal(base) {
		t.Fatal("expected month round trip to drift from the original instant")
	}

	// Months that do not overflow do round trip.
	mid := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	if back := Retreat(Advance(mid, d, UTC), d, UTC); !back.Equal(mid) {
		t.Fatalf("mid-month round trip = %v", back)
	}
}

func TestAdvanceInLocalCalendarAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}

	// The night of 2020-03-29 is 23 hours long in Berlin.
	start := time.Date(2020, 3, 28, 12, 0, 0, 0, loc)
	local := AdvanceIn(start, period.MustParse("P1D"), loc)
	if local.Sub(start) != 23*time.Hour {
		t.Fatalf("local P1D spanned %v, want 23h", local.Sub(start))
	}
	if local.Hour() != 12 {
		t.Fatalf("local P1D landed at hour %d, want 12", local.Hour())
	}

	utc := AdvanceIn(start, period.MustParse("P1D"), time.UTC)
	if utc.Sub(start) != 24*time.Hour {
		t.Fatalf("utc P1D spanned %v, want 24h", utc.Sub(start))
	}
}

func TestAdvanceText(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := AdvanceText(base, "P2D", UTC)
	if err != nil {
		t.Fatalf("AdvanceText: %v", err)
	}
	if want := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("AdvanceText = %v, want %v", got, want)
	}

	back, err := RetreatText(got, "P2D", UTC)
	if err != nil || !back.Equal(base) {
		t.Fatalf("RetreatText = %v, %v", back, err)
	}

	if _, err := AdvanceText(base, "two days", UTC); !errors.Is(err, period.ErrDurationParse) {
		t.Fatalf("AdvanceText error = %v, want ErrDurationParse", err)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": UTC, "UTC": UTC, "local": Local, " Local ": Local} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("gmt+1"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}
