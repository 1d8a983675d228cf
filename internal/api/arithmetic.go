/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/timedimension/internal/datemath"
	"github.com/friendsincode/timedimension/internal/period"
	"github.com/friendsincode/timedimension/internal/sequence"
	"github.com/friendsincode/timedimension/internal/timeline"
	"github.com/friendsincode/timedimension/internal/timestamp"
)

type durationResponse struct {
	Text      string         `json:"text"`
	Canonical string         `json:"canonical"`
	Fields    map[string]int `json:"fields"`
}

func describeDuration(text string, d period.Duration) durationResponse {
	return durationResponse{
		Text:      text,
		Canonical: d.String(),
		Fields: map[string]int{
			"years":   d[period.Years],
			"months":  d[period.Months],
			"weeks":   d[period.Weeks],
			"days":    d[period.Days],
			"hours":   d[period.Hours],
			"minutes": d[period.Minutes],
			"seconds": d[period.Seconds],
		},
	}
}

func (a *API) handleDurationParse(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if strings.TrimSpace(text) == "" {
		writeErrorDetail(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	d, err := a.timelines.Resolver().ParseDuration(text)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describeDuration(text, d))
}

type applyRequest struct {
	Date      string `json:"date"`
	Duration  string `json:"duration"`
	Mode      string `json:"mode,omitempty"`      // utc or local; defaults to the server date mode
	Direction string `json:"direction,omitempty"` // forward (default) or backward
}

type instantResponse struct {
	Time    string `json:"time"`
	EpochMs int64  `json:"epoch_ms"`
}

func instant(t time.Time) instantResponse {
	return instantResponse{Time: t.Format(time.RFC3339Nano), EpochMs: t.UnixMilli()}
}

func (a *API) handleDurationApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	mode := a.dateMode
	if strings.TrimSpace(req.Mode) != "" {
		m, err := datemath.ParseMode(req.Mode)
		if err != nil {
			writeErrorDetail(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		mode = m
	}

	date, err := timestamp.Parser{Location: mode.Location()}.Parse(req.Date)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	d, err := a.timelines.Resolver().ParseDuration(req.Duration)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	var result time.Time
	switch strings.ToLower(strings.TrimSpace(req.Direction)) {
	case "", "forward":
		result = datemath.Advance(date, d, mode)
	case "backward":
		result = datemath.Retreat(date, d, mode)
	default:
		writeErrorDetail(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown direction %q", req.Direction))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":     instant(date),
		"duration": d.String(),
		"mode":     mode.String(),
		"result":   instant(result),
	})
}

func (a *API) handleIntervalParse(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	rng, err := a.timelines.Resolver().ParseInterval(text)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":  text,
		"start": instant(rng.Start),
		"end":   instant(rng.End),
	})
}

type gridRequest struct {
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Interval string `json:"interval,omitempty"`
	Period   string `json:"period,omitempty"`
	Window   string `json:"window,omitempty"`
}

type pointsResponse struct {
	Points   []int64 `json:"points"`
	Count    int     `json:"count"`
	Rejected any     `json:"rejected,omitempty"`
}

func (a *API) handleGridBuild(w http.ResponseWriter, r *http.Request) {
	var req gridRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	iv := strings.TrimSpace(req.Interval)
	if iv == "" {
		if strings.TrimSpace(req.Start) == "" || strings.TrimSpace(req.End) == "" {
			writeErrorDetail(w, http.StatusBadRequest, "invalid_request", "interval or start and end are required")
			return
		}
		iv = strings.TrimSpace(req.Start) + "/" + strings.TrimSpace(req.End)
	}

	res, err := a.timelines.Resolver().Resolve(timeline.Definition{Interval: iv, Period: req.Period, Window: req.Window})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Points: res.Points, Count: len(res.Points)})
}

type timesRequest struct {
	Times  string `json:"times"`
	Period string `json:"period,omitempty"`
	Window string `json:"window,omitempty"`
}

func (a *API) handleTimesParse(w http.ResponseWriter, r *http.Request) {
	var req timesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	res, err := a.timelines.Resolver().ParseTimes(req.Times, req.Period, req.Window)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	resp := pointsResponse{Points: res.Points, Count: len(res.Points)}
	if len(res.Rejected) > 0 {
		resp.Rejected = res.Rejected
	}
	writeJSON(w, http.StatusOK, resp)
}

type sequenceRequest struct {
	A         []int64   `json:"a"`
	B         []int64   `json:"b"`
	Sequences [][]int64 `json:"sequences,omitempty"`
}

// handleSequenceOp applies a set operation. Inputs are normalised to sorted,
// duplicate-free sequences first.
func (a *API) handleSequenceOp(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")

	var req sequenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	if op == "dedupe" {
		out := sequence.Dedupe(req.A)
		writeJSON(w, http.StatusOK, pointsResponse{Points: out, Count: len(out)})
		return
	}

	mode, err := sequence.ParseMode(op)
	if err != nil || op == "" {
		writeError(w, http.StatusNotFound, "unknown_operation")
		return
	}

	seqs := req.Sequences
	if len(seqs) == 0 {
		seqs = [][]int64{req.A, req.B}
	}
	for i := range seqs {
		seqs[i] = sequence.Dedupe(seqs[i])
	}

	out, err := sequence.Combine(mode, seqs...)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Points: out, Count: len(out)})
}
