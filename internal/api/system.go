/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/timedimension/internal/eventbus"
	"github.com/friendsincode/timedimension/internal/logbuffer"
	"github.com/friendsincode/timedimension/internal/version"
)

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build":   version.Current(),
		"updates": a.updates.Info(),
	})
}

func (a *API) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"version": version.Current().Version,
		"cache":   a.cache.Stats(),
	}
	if nb, ok := a.bus.(*eventbus.NATSBus); ok {
		status["event_bus"] = map[string]any{"transport": "nats", "connected": nb.Connected(), "node_id": nb.NodeID()}
	} else {
		status["event_bus"] = map[string]any{"transport": "memory"}
	}
	if a.logBuffer != nil {
		status["logs"] = a.logBuffer.Stats()
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_not_available")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		LayerID:    q.Get("layer_id"),
		TimelineID: q.Get("timeline_id"),
		Search:     q.Get("search"),
		Descending: true,
		Limit:      500,
	}

	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if q.Get("order") == "asc" {
		params.Descending = false
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleLogComponents(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_not_available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"components": a.logBuffer.Components()})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_not_available")
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func (a *API) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_not_available")
		return
	}
	a.logBuffer.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
