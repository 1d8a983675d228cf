/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package datemath moves instants by calendar durations.
//
// Each non-zero field of a period.Duration is applied as one calendar set on
// its unit, in the order years, months, weeks, days, hours, minutes, seconds,
// with time.Date normalising overflow (month 13 is January of the next year,
// January 31 plus one month is March 2 or 3). Weeks are applied as seven days.
// The functions return a new time.Time; the argument is never modified.
package datemath

import (
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/timedimension/internal/period"
)

// Mode selects the calendar used to read and write date fields.
type Mode int

const (
	UTC Mode = iota
	Local
)

// Location returns the time zone fields are computed in.
func (m Mode) Location() *time.Location {
	if m == Local {
		return time.Local
	}
	return time.UTC
}

func (m Mode) String() string {
	if m == Local {
		return "local"
	}
	return "utc"
}

// ParseMode reads "utc" or "local". An empty string is UTC.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utc":
		return UTC, nil
	case "local":
		return Local, nil
	default:
		return UTC, fmt.Errorf("unknown date mode %q", s)
	}
}

// Advance returns t moved forward by d in the given mode.
func Advance(t time.Time, d period.Duration, mode Mode) time.Time {
	return AdvanceIn(t, d, mode.Location())
}

// Retreat returns t moved backward by d in the given mode.
func Retreat(t time.Time, d period.Duration, mode Mode) time.Time {
	return AdvanceIn(t, d.Negate(), mode.Location())
}

// AdvanceIn is Advance with the calendar fields read in loc.
func AdvanceIn(t time.Time, d period.Duration, loc *time.Location) time.Time {
	t = t.In(loc)
	for field, n := range d {
		if n == 0 {
			continue
		}
		year, month, day := t.Date()
		hour, min, sec := t.Clock()
		switch field {
		case period.Years:
			year += n
		case period.Months:
			month += time.Month(n)
		case period.Weeks:
			day += n * 7
		case period.Days:
			day += n
		case period.Hours:
			hour += n
		case period.Minutes:
			min += n
		case period.Seconds:
			sec += n
		}
		t = time.Date(year, month, day, hour, min, sec, t.Nanosecond(), loc)
	}
	return t
}

// AdvanceText parses duration text and advances t by it.
func AdvanceText(t time.Time, text string, mode Mode) (time.Time, error) {
	d, err := period.Parse(text)
	if err != nil {
		return t, err
	}
	return Advance(t, d, mode), nil
}

// RetreatText parses duration text and moves t back by it.
func RetreatText(t time.Time, text string, mode Mode) (time.Time, error) {
	d, err := period.Parse(text)
	if err != nil {
		return t, err
	}
	return Retreat(t, d, mode), nil
}
