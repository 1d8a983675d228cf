/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/timedimension/internal/period"
)

func day(d int) time.Time {
	return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC)
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func equalPoints(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuildDailyGrid(t *testing.T) {
	got, err := Build(day(1), day(4), "P1D", "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []int64{ms(day(1)), ms(day(2)), ms(day(3)), ms(day(4))}
	if !equalPoints(got, want) {
		t.Fatalf("Build = %v, want %v", got, want)
	}
}

func TestBuildAppendsEndWhenStepOvershoots(t *testing.T) {
	end := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	got, err := Build(day(1), end, "PT4H", "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []int64{
		ms(day(1)),
		ms(day(1).Add(4 * time.Hour)),
		ms(day(1).Add(8 * time.Hour)),
		ms(end),
	}
	if !equalPoints(got, want) {
		t.Fatalf("Build = %v, want %v", got, want)
	}
}

func TestBuildWithClockWindow(t *testing.T) {
	got, err := Build(day(1), day(2), "PT1H", "09:00/17:00")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(got) != 10 {
		t.Fatalf("got %d points, want 9 window hours plus the end bound: %v", len(got), got)
	}
	for i, p := range got[:len(got)-1] {
		hour := time.UnixMilli(p).UTC().Hour()
		if hour != 9+i {
			t.Fatalf("point %d at hour %d, want %d", i, hour, 9+i)
		}
	}
	if got[len(got)-1] != ms(day(2)) {
		t.Fatalf("last point = %d, want end bound", got[len(got)-1])
	}
}

func TestBuildWindowMinuteBoundsAreInclusive(t *testing.T) {
	start := time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 1, 11, 0, 0, 0, time.UTC)

	got, err := Build(start, end, "PT15M", "09:15/10:30")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var minutes []string
	for _, p := range got[:len(got)-1] {
		minutes = append(minutes, time.UnixMilli(p).UTC().Format("15:04"))
	}
	want := []string{"09:15", "09:30", "09:45", "10:00", "10:15", "10:30"}
	if len(minutes) != len(want) {
		t.Fatalf("kept %v, want %v", minutes, want)
	}
	for i := range want {
		if minutes[i] != want[i] {
			t.Fatalf("kept %v, want %v", minutes, want)
		}
	}
}

func TestBuildEndIsAlwaysLast(t *testing.T) {
	cases := []struct {
		start, end time.Time
		step       string
	}{
		{day(1), day(31), "P1W"},
		{day(1), day(2), "PT7H"},
		{day(1), time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), "P1M"},
		{day(1), day(1).Add(time.Second), "P1Y"},
	}
	for _, c := range cases {
		got, err := Build(c.start, c.end, c.step, "")
		if err != nil {
			t.Fatalf("Build(%s): %v", c.step, err)
		}
		if got[len(got)-1] != ms(c.end) {
			t.Errorf("Build(%s) last = %d, want %d", c.step, got[len(got)-1], ms(c.end))
		}
		if got[0] != ms(c.start) {
			t.Errorf("Build(%s) first = %d, want start", c.step, got[0])
		}
		for i := 1; i < len(got); i++ {
			if got[i-1] >= got[i] {
				t.Fatalf("Build(%s) not strictly ascending at %d: %v", c.step, i, got)
			}
		}
	}
}

func TestBuildEmptyRangeYieldsEndOnly(t *testing.T) {
	for _, start := range []time.Time{day(3), day(5)} {
		got, err := Build(start, day(3), "P1D", "")
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if !equalPoints(got, []int64{ms(day(3))}) {
			t.Fatalf("Build(%v, day 3) = %v, want only the end", start, got)
		}
	}
}

func TestBuildRejectsZeroDuration(t *testing.T) {
	_, err := Build(day(1), day(2), "PT0S", "")
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("error = %v, want ErrInvalidDuration", err)
	}
	var invalid *InvalidDurationError
	if !errors.As(err, &invalid) || !invalid.Duration.IsZero() {
		t.Fatalf("error %#v does not carry the zero duration", err)
	}
}

func TestBuildRejectsBackwardStep(t *testing.T) {
	_, err := Grid{}.Build(day(1), day(2), period.MustParse("-PT1H"), nil)
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("error = %v, want ErrInvalidDuration", err)
	}
}

func TestBuildPropagatesDurationParseError(t *testing.T) {
	_, err := Build(day(1), day(2), "daily", "")
	if !errors.Is(err, period.ErrDurationParse) {
		t.Fatalf("error = %v, want ErrDurationParse", err)
	}
}

func TestBuildRejectsMalformedWindow(t *testing.T) {
	_, err := Build(day(1), day(2), "PT1H", "9-17")
	if !errors.Is(err, ErrMalformedWindow) {
		t.Fatalf("error = %v, want ErrMalformedWindow", err)
	}
}

func TestGridMaxPoints(t *testing.T) {
	start := day(1)
	end := start.Add(5 * time.Hour)

	points, err := Grid{MaxPoints: 6}.BuildText(start, end, "PT1H", "")
	if err != nil {
		t.Fatalf("five hours plus the end bound should fit in 6: %v", err)
	}
	if len(points) != 6 || points[5] != end.UnixMilli() {
		t.Fatalf("points = %v", points)
	}

	if _, err := (Grid{MaxPoints: 5}).BuildText(start, end, "PT1H", ""); !errors.Is(err, ErrGridTooLarge) {
		t.Fatalf("error = %v, want ErrGridTooLarge", err)
	}
	if _, err := (Grid{MaxPoints: 24}).BuildText(day(1), day(3), "PT1H", ""); !errors.Is(err, ErrGridTooLarge) {
		t.Fatalf("error = %v, want ErrGridTooLarge", err)
	}
}

func TestBuildDoesNotModifyBounds(t *testing.T) {
	start, end := day(1), day(10)
	startCopy, endCopy := start, end

	if _, err := Build(start, end, "P1D", ""); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !start.Equal(startCopy) || !end.Equal(endCopy) {
		t.Fatal("bounds were modified")
	}
}
