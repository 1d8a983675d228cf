/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeexpr expands a times expression, a comma separated list of
// literal dates and "start/end/period" ranges, into one sorted sequence of
// epoch milliseconds.
package timeexpr

import (
	"fmt"
	"slices"
	"strings"

	"github.com/friendsincode/timedimension/internal/clock"
	"github.com/friendsincode/timedimension/internal/interval"
	"github.com/friendsincode/timedimension/internal/period"
)

// Rejection records an entry that was skipped.
type Rejection struct {
	Entry  string `json:"entry"`
	Reason string `json:"reason"`
}

// Result is the expanded expression. Points are ascending and may repeat
// when entries overlap.
type Result struct {
	Points   []int64     `json:"points"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Parser expands times expressions.
type Parser struct {
	Intervals interval.Parser
	// Grid expands ranges. MaxPoints applies per range entry.
	Grid clock.Grid
	// Window, when set, filters every range entry to a daily clock window.
	Window *clock.Window
}

// Parse expands text. A non-empty overwritePeriod replaces the period of
// every range entry; it must itself be a valid, non-zero duration.
// Entries that cannot be resolved are skipped and reported in Rejected.
func (p Parser) Parse(text, overwritePeriod string) (Result, error) {
	res := Result{Points: []int64{}}

	if o := strings.TrimSpace(overwritePeriod); o != "" {
		d, err := p.durations().ParseDuration(o)
		if err != nil {
			return res, fmt.Errorf("overwrite period: %w", err)
		}
		if d.IsZero() {
			return res, &clock.InvalidDurationError{Duration: d, Reason: "zero overwrite period"}
		}
	}

	if strings.TrimSpace(text) == "" {
		return res, nil
	}

	for _, raw := range strings.Split(text, ",") {
		entry := strings.TrimSpace(raw)
		if strings.Count(entry, "/") == 2 {
			points, err := p.expand(entry, overwritePeriod)
			if err != nil {
				res.Rejected = append(res.Rejected, Rejection{Entry: entry, Reason: err.Error()})
				continue
			}
			res.Points = append(res.Points, points...)
			continue
		}

		t, err := p.Intervals.Dates.Parse(entry)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Entry: entry, Reason: err.Error()})
			continue
		}
		res.Points = append(res.Points, t.UnixMilli())
	}

	slices.Sort(res.Points)
	return res, nil
}

func (p Parser) expand(entry, overwritePeriod string) ([]int64, error) {
	span, err := p.Intervals.ParseRange(entry, overwritePeriod)
	if err != nil {
		return nil, err
	}
	return p.Grid.Build(span.Start, span.End, span.Period, p.Window)
}

func (p Parser) durations() period.Parser {
	if p.Intervals.Durations == nil {
		return period.ISOParser{}
	}
	return p.Intervals.Durations
}

// Parse expands text with the default Parser and returns only the points.
func Parse(text, overwritePeriod string) ([]int64, error) {
	res, err := Parser{}.Parse(text, overwritePeriod)
	return res.Points, err
}
