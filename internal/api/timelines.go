/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/timedimension/internal/events"
	"github.com/friendsincode/timedimension/internal/export"
	"github.com/friendsincode/timedimension/internal/telemetry"
	"github.com/friendsincode/timedimension/internal/timeline"
)

func (a *API) handleTimelinesList(w http.ResponseWriter, r *http.Request) {
	timelines, err := a.timelines.ListTimelines(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, timelines)
}

func (a *API) handleTimelinesCreate(w http.ResponseWriter, r *http.Request) {
	var in timeline.TimelineInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	tl, err := a.timelines.CreateTimeline(r.Context(), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tl)
}

func (a *API) handleTimelinesGet(w http.ResponseWriter, r *http.Request) {
	tl, err := a.timelines.GetTimeline(r.Context(), chi.URLParam(r, "timelineID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (a *API) handleTimelinesUpdate(w http.ResponseWriter, r *http.Request) {
	var in timeline.TimelineInput
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	tl, err := a.timelines.UpdateTimeline(r.Context(), chi.URLParam(r, "timelineID"), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

func (a *API) handleTimelinesDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.timelines.DeleteTimeline(r.Context(), chi.URLParam(r, "timelineID")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTimelineTimes(w http.ResponseWriter, r *http.Request) {
	res, err := a.timelines.ResolveTimeline(r.Context(), chi.URLParam(r, "timelineID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type exportRequest struct {
	Format string `json:"format"`
}

func (a *API) handleExportsCreate(w http.ResponseWriter, r *http.Request) {
	if a.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports_not_available")
		return
	}

	format := r.URL.Query().Get("format")
	if r.ContentLength > 0 {
		var req exportRequest
		if err := decodeJSON(w, r, &req); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		if req.Format != "" {
			format = req.Format
		}
	}

	f, err := export.ParseFormat(format)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	record, err := a.exports.Create(r.Context(), chi.URLParam(r, "timelineID"), f)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (a *API) handleExportsList(w http.ResponseWriter, r *http.Request) {
	if a.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports_not_available")
		return
	}
	id := chi.URLParam(r, "timelineID")
	if _, err := a.timelines.GetTimeline(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	list, err := a.exports.List(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	if a.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports_not_available")
		return
	}
	record, data, err := a.exports.Open(r.Context(), chi.URLParam(r, "exportID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(record.Format))
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(record.ObjectKey)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// streamEvents are the changes that can alter a resolved timeline.
var streamEvents = []events.EventType{
	events.EventLayerUpdated,
	events.EventLayerDeleted,
	events.EventTimelineUpdated,
	events.EventTimelineDeleted,
}

// handleTimelineStream pushes the resolved timeline on connect and again
// after every change that may affect it.
func (a *API) handleTimelineStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "timelineID")
	if _, err := a.timelines.GetTimeline(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.StreamSubscribers.Inc()
	defer telemetry.StreamSubscribers.Dec()

	// Reads are only needed to observe client close frames.
	ctx := conn.CloseRead(r.Context())

	subscribers := make([]events.Subscriber, len(streamEvents))
	for i, eventType := range streamEvents {
		subscribers[i] = a.bus.Subscribe(eventType)
	}
	defer func() {
		for i, eventType := range streamEvents {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	if err := a.pushTimeline(ctx, conn, id); err != nil {
		a.logger.Debug().Err(err).Str("timeline_id", id).Msg("initial stream push failed")
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		var (
			eventType events.EventType
			payload   events.Payload
		)
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
			continue
		case payload = <-subscribers[0]:
			eventType = streamEvents[0]
		case payload = <-subscribers[1]:
			eventType = streamEvents[1]
		case payload = <-subscribers[2]:
			eventType = streamEvents[2]
		case payload = <-subscribers[3]:
			eventType = streamEvents[3]
		}

		if tid, ok := payload["timeline_id"].(string); ok && tid != id {
			continue
		}
		if eventType == events.EventTimelineDeleted {
			_ = writeStreamMessage(ctx, conn, "deleted", map[string]string{"id": id})
			conn.Close(ws.StatusNormalClosure, "timeline deleted")
			return
		}
		if err := a.pushTimeline(ctx, conn, id); err != nil {
			a.logger.Debug().Err(err).Str("timeline_id", id).Msg("stream push failed")
			return
		}
	}
}

func (a *API) pushTimeline(ctx context.Context, conn *ws.Conn, id string) error {
	res, err := a.timelines.ResolveTimeline(ctx, id)
	if err != nil {
		if errors.Is(err, timeline.ErrTimelineNotFound) {
			_ = writeStreamMessage(ctx, conn, "deleted", map[string]string{"id": id})
			conn.Close(ws.StatusNormalClosure, "timeline deleted")
		}
		return err
	}
	return writeStreamMessage(ctx, conn, "timeline", res)
}

func writeStreamMessage(ctx context.Context, conn *ws.Conn, kind string, payload any) error {
	data, err := json.Marshal(map[string]any{
		"type":    kind,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
