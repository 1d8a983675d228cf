/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeline resolves layers and timelines into sequences of time
// points and manages their persistence.
package timeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/timedimension/internal/clock"
	"github.com/friendsincode/timedimension/internal/datemath"
	"github.com/friendsincode/timedimension/internal/interval"
	"github.com/friendsincode/timedimension/internal/models"
	"github.com/friendsincode/timedimension/internal/period"
	"github.com/friendsincode/timedimension/internal/telemetry"
	"github.com/friendsincode/timedimension/internal/timeexpr"
	"github.com/friendsincode/timedimension/internal/timestamp"
)

// ErrEmptyDefinition is returned for a definition with neither times nor an
// interval.
var ErrEmptyDefinition = errors.New("layer needs times or an interval")

// ErrAmbiguousDefinition is returned when both times and an interval are set.
var ErrAmbiguousDefinition = errors.New("layer has both times and an interval")

// Definition is the textual description of a layer's time points.
type Definition struct {
	Times    string `json:"times,omitempty" yaml:"times,omitempty"`
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
	Period   string `json:"period,omitempty" yaml:"period,omitempty"`
	Window   string `json:"window,omitempty" yaml:"window,omitempty"`
}

// DefinitionOf extracts the definition stored on a layer.
func DefinitionOf(l *models.Layer) Definition {
	return Definition{Times: l.Times, Interval: l.Interval, Period: l.Period, Window: l.Window}
}

// Kind names how the definition is expanded: "times", "interval" or "empty".
func (d Definition) Kind() string {
	switch {
	case strings.TrimSpace(d.Times) != "":
		return "times"
	case strings.TrimSpace(d.Interval) != "":
		return "interval"
	}
	return "empty"
}

// Resolution is a resolved definition. Points are ascending.
type Resolution struct {
	Points   []int64              `json:"points"`
	Rejected []timeexpr.Rejection `json:"rejected,omitempty"`
}

// Resolver turns definitions into time points. The zero value reads ISO-8601
// durations, offset-less dates in local time, steps interval layers by P1D and
// does not cap grids.
type Resolver struct {
	Durations     period.Parser
	Dates         timestamp.Parser
	DefaultPeriod period.Duration
	MaxPoints     int
}

// NewResolver builds a resolver from service settings.
func NewResolver(defaultPeriod period.Duration, maxPoints int, mode datemath.Mode) Resolver {
	return Resolver{
		Dates:         timestamp.Parser{Location: mode.Location()},
		DefaultPeriod: defaultPeriod,
		MaxPoints:     maxPoints,
	}
}

func (r Resolver) intervals() interval.Parser {
	return interval.Parser{Durations: r.Durations, Dates: r.Dates}
}

func (r Resolver) grid() clock.Grid {
	return clock.Grid{Codec: period.NewCodec(r.Durations), MaxPoints: r.MaxPoints}
}

// Resolve expands def. Times definitions never fail on individual entries;
// those are reported in Rejected.
func (r Resolver) Resolve(def Definition) (Resolution, error) {
	times := strings.TrimSpace(def.Times)
	iv := strings.TrimSpace(def.Interval)

	switch {
	case times != "" && iv != "":
		return Resolution{}, ErrAmbiguousDefinition
	case times == "" && iv == "":
		return Resolution{}, ErrEmptyDefinition
	}

	window, err := clock.ParseWindow(def.Window)
	if err != nil {
		return Resolution{}, err
	}

	if times != "" {
		return r.resolveTimes(times, def.Period, window)
	}
	return r.resolveInterval(iv, def.Period, window)
}

// ParseTimes expands a times expression, optionally filtered to a daily
// window. Empty text yields no points.
func (r Resolver) ParseTimes(text, overwritePeriod, windowText string) (Resolution, error) {
	window, err := clock.ParseWindow(windowText)
	if err != nil {
		return Resolution{}, err
	}
	return r.resolveTimes(text, overwritePeriod, window)
}

// ParseInterval resolves "A/B" interval text with the resolver's parsers.
func (r Resolver) ParseInterval(text string) (interval.Range, error) {
	rng, err := r.intervals().Parse(text)
	if err != nil {
		countParseFailure(err)
	}
	return rng, err
}

// ParseDuration reads duration text with the resolver's grammar.
func (r Resolver) ParseDuration(text string) (period.Duration, error) {
	d, err := period.NewCodec(r.Durations).Parse(text)
	if err != nil {
		countParseFailure(err)
	}
	return d, err
}

func (r Resolver) resolveTimes(text, overwritePeriod string, window *clock.Window) (Resolution, error) {
	start := time.Now()
	defer func() {
		telemetry.ResolveDuration.WithLabelValues("times").Observe(time.Since(start).Seconds())
	}()

	p := timeexpr.Parser{Intervals: r.intervals(), Grid: r.grid(), Window: window}
	res, err := p.Parse(text, overwritePeriod)
	if err != nil {
		countParseFailure(err)
		return Resolution{}, err
	}

	telemetry.GridPointsGenerated.Add(float64(len(res.Points)))
	telemetry.RejectedEntriesTotal.Add(float64(len(res.Rejected)))
	return Resolution{Points: res.Points, Rejected: res.Rejected}, nil
}

func (r Resolver) resolveInterval(text, periodText string, window *clock.Window) (Resolution, error) {
	start := time.Now()
	defer func() {
		telemetry.ResolveDuration.WithLabelValues("interval").Observe(time.Since(start).Seconds())
	}()

	var (
		rng  interval.Range
		step period.Duration
		err  error
	)
	if strings.Count(text, "/") == 2 {
		var span interval.Span
		span, err = r.intervals().ParseRange(text, periodText)
		rng, step = span.Range, span.Period
	} else {
		rng, err = r.intervals().Parse(text)
		if err == nil {
			step, err = r.step(periodText)
		}
	}
	if err != nil {
		countParseFailure(err)
		telemetry.GridBuildsTotal.WithLabelValues("error").Inc()
		return Resolution{}, err
	}

	points, err := r.grid().Build(rng.Start, rng.End, step, window)
	if err != nil {
		telemetry.GridBuildsTotal.WithLabelValues("error").Inc()
		return Resolution{}, err
	}
	telemetry.GridBuildsTotal.WithLabelValues("ok").Inc()
	telemetry.GridPointsGenerated.Add(float64(len(points)))
	return Resolution{Points: points}, nil
}

func (r Resolver) step(text string) (period.Duration, error) {
	if strings.TrimSpace(text) != "" {
		return period.NewCodec(r.Durations).Parse(text)
	}
	if !r.DefaultPeriod.IsZero() {
		return r.DefaultPeriod, nil
	}
	return period.Parse(interval.DefaultPeriod)
}

func countParseFailure(err error) {
	if errors.Is(err, period.ErrDurationParse) {
		telemetry.DurationParseFailures.Inc()
	}
}

// Validate reports why def cannot be resolved, or nil.
func (r Resolver) Validate(def Definition) error {
	if _, err := r.Resolve(def); err != nil {
		return fmt.Errorf("invalid layer definition: %w", err)
	}
	return nil
}
