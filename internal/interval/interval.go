/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package interval resolves ISO-8601 interval text ("start/end",
// "duration/end", "start/duration") into a concrete pair of instants.
package interval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/timedimension/internal/datemath"
	"github.com/friendsincode/timedimension/internal/period"
	"github.com/friendsincode/timedimension/internal/timestamp"
)

// DefaultPeriod is the grid step used when a range leaves its period empty.
const DefaultPeriod = "P1D"

// ErrMalformedInterval matches every *MalformedIntervalError via errors.Is.
var ErrMalformedInterval = errors.New("malformed ISO-8601 interval")

// MalformedIntervalError reports interval text that cannot be resolved.
type MalformedIntervalError struct {
	Text   string
	Reason string
	Err    error
}

func (e *MalformedIntervalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed ISO-8601 interval %q: %s: %v", e.Text, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed ISO-8601 interval %q: %s", e.Text, e.Reason)
}

func (e *MalformedIntervalError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedInterval) hold for any MalformedIntervalError.
func (e *MalformedIntervalError) Is(target error) bool {
	return target == ErrMalformedInterval
}

// Range is a resolved interval.
type Range struct {
	Start time.Time
	End   time.Time
}

// Span is a range together with the step used to expand it into a grid.
type Span struct {
	Range
	Period period.Duration
}

// Parser resolves interval text. The zero value reads durations with the
// ISO-8601 grammar and offset-less dates in the local zone.
type Parser struct {
	Durations period.Parser
	Dates     timestamp.Parser
}

func (p Parser) durations() period.Parser {
	if p.Durations == nil {
		return period.ISOParser{}
	}
	return p.Durations
}

// Parse resolves "A/B" text. Exactly one of A or B may be a duration; a
// duration-first interval is anchored on the parsed end.
func (p Parser) Parse(text string) (Range, error) {
	parts := strings.Split(strings.TrimSpace(text), "/")
	if len(parts) != 2 {
		return Range{}, &MalformedIntervalError{Text: text, Reason: fmt.Sprintf("want 2 parts separated by '/', got %d", len(parts))}
	}
	return p.resolve(text, parts[0], parts[1])
}

func (p Parser) resolve(text, a, b string) (Range, error) {
	start, startErr := p.Dates.Parse(a)
	end, endErr := p.Dates.Parse(b)

	switch {
	case startErr == nil && endErr == nil:
		return Range{Start: start, End: end}, nil

	case startErr != nil && endErr == nil:
		d, err := p.durations().ParseDuration(a)
		if err != nil {
			return Range{}, err
		}
		return Range{Start: datemath.Retreat(end, d, datemath.UTC), End: end}, nil

	case startErr == nil && endErr != nil:
		d, err := p.durations().ParseDuration(b)
		if err != nil {
			return Range{}, err
		}
		return Range{Start: start, End: datemath.Advance(start, d, datemath.UTC)}, nil
	}

	_, durErr := p.durations().ParseDuration(a)
	if durErr == nil {
		_, durErr = p.durations().ParseDuration(b)
	}
	return Range{}, &MalformedIntervalError{Text: text, Reason: "neither part is a date", Err: durErr}
}

// ParseRange resolves "start/end/period" text. The first two parts follow
// the Parse rules. An empty period means DefaultPeriod and a non-empty
// overwritePeriod replaces whatever the text carries.
func (p Parser) ParseRange(text, overwritePeriod string) (Span, error) {
	parts := strings.Split(strings.TrimSpace(text), "/")
	if len(parts) != 3 {
		return Span{}, &MalformedIntervalError{Text: text, Reason: fmt.Sprintf("want 3 parts separated by '/', got %d", len(parts))}
	}

	r, err := p.resolve(text, parts[0], parts[1])
	if err != nil {
		return Span{}, err
	}

	periodText := strings.TrimSpace(parts[2])
	if periodText == "" {
		periodText = DefaultPeriod
	}
	if o := strings.TrimSpace(overwritePeriod); o != "" {
		periodText = o
	}
	d, err := p.durations().ParseDuration(periodText)
	if err != nil {
		return Span{}, err
	}
	return Span{Range: r, Period: d}, nil
}

// Parse resolves "A/B" text with the default Parser.
func Parse(text string) (Range, error) {
	return Parser{}.Parse(text)
}
