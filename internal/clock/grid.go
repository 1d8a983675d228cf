/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock expands a time range into a discrete grid of time points at a
// fixed calendar step, optionally limited to a daily clock window.
package clock

import (
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/timedimension/internal/datemath"
	"github.com/friendsincode/timedimension/internal/period"
)

// ErrInvalidDuration matches every *InvalidDurationError via errors.Is.
var ErrInvalidDuration = errors.New("invalid grid step")

// ErrGridTooLarge is returned when a grid would exceed Grid.MaxPoints.
var ErrGridTooLarge = errors.New("time grid too large")

// InvalidDurationError reports a step that would never reach the end bound.
type InvalidDurationError struct {
	Duration period.Duration
	Reason   string
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid grid step %s: %s", e.Duration, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidDuration) hold for any InvalidDurationError.
func (e *InvalidDurationError) Is(target error) bool {
	return target == ErrInvalidDuration
}

// Grid builds time grids.
type Grid struct {
	// Codec decodes step text for BuildText. Nil uses the ISO-8601 grammar.
	Codec *period.Codec
	// MaxPoints caps the number of points returned, the end bound included.
	// Zero means no cap.
	MaxPoints int
}

// Build returns the epoch millisecond points from start (inclusive) stepping
// by d in UTC while before end. Points outside w are dropped when w is set.
// end is always appended as the last point, exactly once.
func (g Grid) Build(start, end time.Time, d period.Duration, w *Window) ([]int64, error) {
	if d.IsZero() {
		return nil, &InvalidDurationError{Duration: d, Reason: "zero duration"}
	}

	points := make([]int64, 0, estimateCapacity(start, end, d))
	current := start
	for current.Before(end) {
		if w == nil || w.Contains(current) {
			// One slot stays reserved for the end bound.
			if g.MaxPoints > 0 && len(points)+1 >= g.MaxPoints {
				return nil, fmt.Errorf("%w: more than %d points", ErrGridTooLarge, g.MaxPoints)
			}
			points = append(points, current.UnixMilli())
		}

		next := datemath.Advance(current, d, datemath.UTC)
		if !next.After(current) {
			return nil, &InvalidDurationError{Duration: d, Reason: "step does not move forward from " + current.UTC().Format(time.RFC3339)}
		}
		current = next
	}

	return append(points, end.UnixMilli()), nil
}

// BuildText is Build with the step given as ISO-8601 duration text and the
// window as "HH:MM/HH:MM" (empty for none).
func (g Grid) BuildText(start, end time.Time, durationText, windowText string) ([]int64, error) {
	codec := g.Codec
	if codec == nil {
		codec = period.NewCodec(nil)
	}
	d, err := codec.Parse(durationText)
	if err != nil {
		return nil, err
	}
	w, err := ParseWindow(windowText)
	if err != nil {
		return nil, err
	}
	return g.Build(start, end, d, w)
}

// Build expands [start, end] with an uncapped Grid.
func Build(start, end time.Time, durationText, windowText string) ([]int64, error) {
	return Grid{}.BuildText(start, end, durationText, windowText)
}

// estimateCapacity guesses the point count for fixed-length steps so the
// slice is allocated once. Calendar steps fall back to a small default.
func estimateCapacity(start, end time.Time, d period.Duration) int {
	const fallback = 16
	if d[period.Years] != 0 || d[period.Months] != 0 || !start.Before(end) {
		return fallback
	}
	step := time.Duration(d[period.Weeks]*7+d[period.Days])*24*time.Hour +
		time.Duration(d[period.Hours])*time.Hour +
		time.Duration(d[period.Minutes])*time.Minute +
		time.Duration(d[period.Seconds])*time.Second
	if step <= 0 {
		return fallback
	}
	n := int(end.Sub(start)/step) + 2
	if n > 1<<16 {
		return 1 << 16
	}
	return n
}
