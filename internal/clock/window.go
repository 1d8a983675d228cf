/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedWindow is returned for window text that is not "HH:MM/HH:MM".
var ErrMalformedWindow = errors.New("malformed clock window")

// Window is a daily time-of-day range, closed at both ends and evaluated in
// UTC. A window whose start is after its end selects nothing.
type Window struct {
	MinHour   int
	MinMinute int
	MaxHour   int
	MaxMinute int
}

// ParseWindow reads "HH:MM/HH:MM". Empty text means no window and returns nil.
func ParseWindow(text string) (*Window, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	from, to, ok := strings.Cut(text, "/")
	if !ok || strings.Contains(to, "/") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedWindow, text)
	}
	minHour, minMinute, err := parseClock(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedWindow, text, err)
	}
	maxHour, maxMinute, err := parseClock(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedWindow, text, err)
	}

	return &Window{
		MinHour:   minHour,
		MinMinute: minMinute,
		MaxHour:   maxHour,
		MaxMinute: maxMinute,
	}, nil
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("missing ':' in %q", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour %q out of range", hh)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute %q out of range", mm)
	}
	return hour, minute, nil
}

// Contains reports whether the UTC time of day of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	hour, minute := t.Hour(), t.Minute()
	if hour < w.MinHour || hour > w.MaxHour {
		return false
	}
	if hour == w.MinHour && minute < w.MinMinute {
		return false
	}
	if hour == w.MaxHour && minute > w.MaxMinute {
		return false
	}
	return true
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d/%02d:%02d", w.MinHour, w.MinMinute, w.MaxHour, w.MaxMinute)
}
